package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Redrive outcome labels.
const (
	OutcomePulled       = "pulled"
	OutcomeRepublished  = "republished"
	OutcomeAcknowledged = "acknowledged"
	OutcomeSkipped      = "skipped"
	OutcomeFailed       = "failed"
)

// Redrive counts redrive outcomes per source queue. A nil *Redrive records nothing.
type Redrive struct {
	mu sync.Mutex

	messagesTotal      *prometheus.CounterVec
	leaseFailuresTotal *prometheus.CounterVec
	lastExitCode       *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// NewRedrive creates the redrive collectors. A nil registerer uses the default one.
func NewRedrive(registerer prometheus.Registerer) *Redrive {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Redrive{
		registerer:         registerer,
		messagesTotal:      newCounterVec("redrive", "messages_total", "Redriven messages by outcome", []string{"source", "outcome"}),
		leaseFailuresTotal: newCounterVec("redrive", "lease_extension_failures_total", "Failed lease extensions", []string{"source"}),
		lastExitCode:       newGaugeVec("redrive", "last_exit_code", "Exit code of the last completed run", []string{"source"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Redrive) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	if err := register(m.registerer, m.messagesTotal, m.leaseFailuresTotal, m.lastExitCode); err != nil {
		return err
	}
	m.registered = true
	return nil
}

// Add counts n messages with the given outcome.
func (m *Redrive) Add(source, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesTotal.WithLabelValues(source, outcome).Add(float64(n))
}

// LeaseExtensionFailed counts one failed lease extension.
func (m *Redrive) LeaseExtensionFailed(source string) {
	if m == nil {
		return
	}
	m.leaseFailuresTotal.WithLabelValues(source).Inc()
}

// Finished records the exit code of a completed run.
func (m *Redrive) Finished(source string, exitCode int) {
	if m == nil {
		return
	}
	m.lastExitCode.WithLabelValues(source).Set(float64(exitCode))
}
