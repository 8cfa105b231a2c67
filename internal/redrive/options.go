package redrive

import (
	"time"

	"github.com/drblury/pulseflow/internal/runtime/config"
)

// Options tune one redrive run. Zero values take the defaults below, except
// QPS where zero or less disables throttling.
type Options struct {
	DryRun         bool
	AckSkipped     bool
	MaxMessages    int
	BatchSize      int
	QPS            float64
	PullTimeout    time.Duration
	PublishTimeout time.Duration
	MaxLease       time.Duration
	LeaseMargin    time.Duration
	MinLease       time.Duration
	StripPrefixes  []string
	StripKeys      []string
	// SourceName overrides the queue name used for replay_source.
	SourceName string
}

// FromConfig maps the redrive configuration onto Options.
func FromConfig(cfg config.RedriveConfig) Options {
	cfg = cfg.WithDefaults()
	return Options{
		DryRun:         cfg.DryRun,
		AckSkipped:     cfg.AckSkipped,
		MaxMessages:    cfg.MaxMessages,
		BatchSize:      cfg.BatchSize,
		QPS:            cfg.QPS,
		PullTimeout:    cfg.PullTimeout(),
		PublishTimeout: cfg.PublishTimeout(),
		MaxLease:       cfg.MaxLease(),
		LeaseMargin:    cfg.LeaseMargin(),
		MinLease:       cfg.MinLease(),
		StripPrefixes:  cfg.StripPrefixes,
		StripKeys:      cfg.StripKeys,
		SourceName:     cfg.Source,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = config.DefaultMaxMessages
	}
	if o.BatchSize <= 0 {
		o.BatchSize = config.DefaultBatchSize
	}
	if o.PullTimeout <= 0 {
		o.PullTimeout = seconds(config.DefaultPullTimeoutS)
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = seconds(config.DefaultPublishTimeoutS)
	}
	if o.MaxLease <= 0 {
		o.MaxLease = seconds(config.DefaultMaxLeaseS)
	}
	if o.LeaseMargin <= 0 {
		o.LeaseMargin = seconds(config.DefaultLeaseMarginS)
	}
	if o.MinLease <= 0 {
		o.MinLease = seconds(config.DefaultMinLeaseS)
	}
	if o.StripPrefixes == nil {
		o.StripPrefixes = config.DefaultStripPrefixes
	}
	if o.StripKeys == nil {
		o.StripKeys = config.DefaultStripKeys
	}
	return o
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
