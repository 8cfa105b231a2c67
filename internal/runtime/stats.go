package runtime

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
)

const latencySampleSize = 256

// ErrorClassifier maps a handler error to the class counted in its stats.
type ErrorClassifier func(error) string

// DefaultErrorClassifier uses the failure class carried by the error, then
// the error taxonomy name.
func DefaultErrorClassifier(err error) string {
	if err == nil {
		return ""
	}
	var classified interface{ FailureClass() string }
	if errors.As(err, &classified) && classified.FailureClass() != "" {
		return classified.FailureClass()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return errspkg.TypeName(err)
}

// HandlerInfo describes a registered handler for the status API.
type HandlerInfo struct {
	Name         string        `json:"name"`
	ConsumeQueue string        `json:"consume_queue"`
	Stats        *HandlerStats `json:"-"`
}

// HandlerSnapshot is the JSON form of a handler and its counters.
type HandlerSnapshot struct {
	Name           string           `json:"name"`
	ConsumeQueue   string           `json:"consume_queue"`
	Processed      uint64           `json:"processed"`
	Failed         uint64           `json:"failed"`
	FailureClasses map[string]int64 `json:"failure_classes"`
	LastError      string           `json:"last_error,omitempty"`
	LastErrorAt    *time.Time       `json:"last_error_at,omitempty"`
	LastProcessed  *time.Time       `json:"last_processed_at,omitempty"`
	Latency        LatencyMetrics   `json:"latency"`
}

// LatencyMetrics summarizes the most recent handler durations.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// HandlerStats counts outcomes of one handler. It is safe for concurrent use.
type HandlerStats struct {
	mu sync.Mutex

	processed      uint64
	failed         uint64
	failureClasses map[string]int64
	lastError      string
	lastErrorAt    time.Time
	lastProcessed  time.Time
	latency        *latencyWindow
}

func newHandlerStats() *HandlerStats {
	return &HandlerStats{
		failureClasses: make(map[string]int64),
		latency:        newLatencyWindow(latencySampleSize),
	}
}

func (h *HandlerStats) record(now time.Time, d time.Duration, err error, classify ErrorClassifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed++
	h.lastProcessed = now
	h.latency.Add(d)
	if err == nil {
		return
	}
	h.failed++
	h.failureClasses[classify(err)]++
	h.lastError = err.Error()
	h.lastErrorAt = now
}

// Snapshot copies the counters.
func (h *HandlerStats) Snapshot() HandlerSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HandlerSnapshot{
		Processed:      h.processed,
		Failed:         h.failed,
		FailureClasses: make(map[string]int64, len(h.failureClasses)),
		LastError:      h.lastError,
		Latency:        h.latency.Snapshot(),
	}
	for k, v := range h.failureClasses {
		snap.FailureClasses[k] = v
	}
	if !h.lastErrorAt.IsZero() {
		t := h.lastErrorAt
		snap.LastErrorAt = &t
	}
	if !h.lastProcessed.IsZero() {
		t := h.lastProcessed
		snap.LastProcessed = &t
	}
	return snap
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	m := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return m
	}
	samples := make([]int64, lw.filled)
	for i := range samples {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	slices.Sort(samples)

	var sum int64
	for _, v := range samples {
		sum += v
	}
	m.SampleSize = len(samples)
	m.AverageNs = sum / int64(len(samples))
	m.P50Ns = percentile(samples, 0.50)
	m.P95Ns = percentile(samples, 0.95)
	m.P99Ns = percentile(samples, 0.99)
	return m
}

// percentile interpolates linearly between the closest ranks of sorted samples.
func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower, upper := int(math.Floor(pos)), int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}
