// Package metrics holds the Prometheus collectors of the pipeline stages and
// the redrive worker, plus in-memory counts served by the status API.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulseflow"

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// register registers every collector, tolerating collectors that are already present.
func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// StageCounts is the failure tally of one stage.
type StageCounts struct {
	Failures      uint64            `json:"failures"`
	ByErrorType   map[string]uint64 `json:"by_error_type"`
	LastErrorType string            `json:"last_error_type,omitempty"`
	LastFailureAt time.Time         `json:"last_failure_at,omitempty"`
}

// StageSnapshot is a point-in-time view of the pipeline counters.
type StageSnapshot struct {
	TotalFailures      uint64                  `json:"total_failures"`
	RowsWritten        map[string]uint64       `json:"rows_written"`
	DeadLettersWritten uint64                  `json:"dead_letters_written"`
	DeadLettersDropped uint64                  `json:"dead_letters_dropped"`
	Stages             map[string]*StageCounts `json:"stages"`
	CollectedAt        time.Time               `json:"collected_at"`
}

// Stages tracks pipeline failures per stage and error type. A nil *Stages is
// valid and records nothing.
type Stages struct {
	mu sync.RWMutex

	counts      map[string]*StageCounts
	rows        map[string]uint64
	deadWritten uint64
	deadDropped uint64

	failuresTotal    *prometheus.CounterVec
	rowsTotal        *prometheus.CounterVec
	deadLettersTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// NewStages creates the pipeline collectors. A nil registerer uses the default one.
func NewStages(registerer prometheus.Registerer) *Stages {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Stages{
		counts:           make(map[string]*StageCounts),
		rows:             make(map[string]uint64),
		registerer:       registerer,
		failuresTotal:    newCounterVec("stage", "failures_total", "Number of inputs that failed a pipeline stage", []string{"stage", "error_type"}),
		rowsTotal:        newCounterVec("sink", "rows_written_total", "Number of curated rows written", []string{"table"}),
		deadLettersTotal: newCounterVec("dlq", "records_total", "Number of dead-letter records by outcome", []string{"outcome"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Stages) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	if err := register(m.registerer, m.failuresTotal, m.rowsTotal, m.deadLettersTotal); err != nil {
		return err
	}
	m.registered = true
	return nil
}

// RecordFailure counts one failed input.
func (m *Stages) RecordFailure(stage, errorType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counts[stage]
	if !ok {
		c = &StageCounts{ByErrorType: make(map[string]uint64)}
		m.counts[stage] = c
	}
	c.Failures++
	c.ByErrorType[errorType]++
	c.LastErrorType = errorType
	c.LastFailureAt = time.Now()

	m.failuresTotal.WithLabelValues(stage, errorType).Inc()
}

// RecordRowsWritten counts rows durably written to table.
func (m *Stages) RecordRowsWritten(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[table] += uint64(n)
	m.rowsTotal.WithLabelValues(table).Add(float64(n))
}

// RecordDeadLetters counts records handed to the dead-letter sink. Dropped
// records are the ones the sink could not persist.
func (m *Stages) RecordDeadLetters(written, dropped int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if written > 0 {
		m.deadWritten += uint64(written)
		m.deadLettersTotal.WithLabelValues("written").Add(float64(written))
	}
	if dropped > 0 {
		m.deadDropped += uint64(dropped)
		m.deadLettersTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// Snapshot copies the current counts.
func (m *Stages) Snapshot() StageSnapshot {
	snap := StageSnapshot{
		RowsWritten: make(map[string]uint64),
		Stages:      make(map[string]*StageCounts),
		CollectedAt: time.Now(),
	}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for stage, c := range m.counts {
		byType := make(map[string]uint64, len(c.ByErrorType))
		for k, v := range c.ByErrorType {
			byType[k] = v
		}
		snap.Stages[stage] = &StageCounts{
			Failures:      c.Failures,
			ByErrorType:   byType,
			LastErrorType: c.LastErrorType,
			LastFailureAt: c.LastFailureAt,
		}
		snap.TotalFailures += c.Failures
	}
	for table, n := range m.rows {
		snap.RowsWritten[table] = n
	}
	snap.DeadLettersWritten = m.deadWritten
	snap.DeadLettersDropped = m.deadDropped
	return snap
}

// Reset clears all counts (useful for testing).
func (m *Stages) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts = make(map[string]*StageCounts)
	m.rows = make(map[string]uint64)
	m.deadWritten = 0
	m.deadDropped = 0
	m.failuresTotal.Reset()
	m.rowsTotal.Reset()
	m.deadLettersTotal.Reset()
}
