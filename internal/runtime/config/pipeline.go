package config

import (
	"errors"
	"fmt"
)

// Default pipeline settings.
const (
	DefaultIngressTopic    = "pulse.ingress"
	DefaultHoldingTopic    = "pulse.ingress.dlq"
	DefaultDeadLetterTable = "curated_dlq"
	DefaultMaxRawBytes     = 10000
	DefaultConcurrency     = 8
	DefaultPushPath        = "/pubsub/push"
)

// PipelineConfig drives the transform pipeline and its sinks.
type PipelineConfig struct {
	// IngressTopic is consumed by the router handler and is the redrive target by default.
	IngressTopic string `mapstructure:"ingress_topic"`

	// StoreDriver is one of "postgres", "duckdb" or "sqlite3". Empty disables the curated sink.
	StoreDriver string `mapstructure:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn"`
	// AutoMigrate creates the curated and dead-letter tables on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
	// RawLanding writes every normalized envelope to events_raw ahead of the
	// curated rows. Load enables it.
	RawLanding bool `mapstructure:"raw_landing"`

	// DeadLetterTable receives Dead-Letter Records. Empty drops failures after logging.
	DeadLetterTable string `mapstructure:"dead_letter_table"`
	// MaxRawBytes bounds the raw input copied into a Dead-Letter Record.
	MaxRawBytes int `mapstructure:"max_raw_bytes"`

	// Concurrency bounds ProcessBatch workers.
	Concurrency int `mapstructure:"concurrency"`

	// Sink retry policy for transient errors.
	SinkMaxAttempts     int `mapstructure:"sink_max_attempts"`
	SinkInitialInterval int `mapstructure:"sink_initial_interval_ms"`

	// PushPort serves the push-style ingress endpoint when positive.
	PushPort int    `mapstructure:"push_port"`
	PushPath string `mapstructure:"push_path"`
}

// WithDefaults returns a copy with zero values replaced.
func (p PipelineConfig) WithDefaults() PipelineConfig {
	if p.IngressTopic == "" {
		p.IngressTopic = DefaultIngressTopic
	}
	if p.MaxRawBytes <= 0 {
		p.MaxRawBytes = DefaultMaxRawBytes
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.SinkMaxAttempts <= 0 {
		p.SinkMaxAttempts = 4
	}
	if p.SinkInitialInterval <= 0 {
		p.SinkInitialInterval = 200
	}
	if p.PushPath == "" {
		p.PushPath = DefaultPushPath
	}
	return p
}

func (p PipelineConfig) validate() []error {
	var errs []error
	switch p.StoreDriver {
	case "", "postgres", "duckdb", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("pipeline: unsupported store driver %q", p.StoreDriver))
	}
	if p.StoreDriver != "" && p.StoreDSN == "" && p.StoreDriver != "duckdb" {
		errs = append(errs, errors.New("pipeline: store DSN is required"))
	}
	if p.MaxRawBytes < 0 {
		errs = append(errs, errors.New("pipeline: max raw bytes cannot be negative"))
	}
	if p.Concurrency < 0 {
		errs = append(errs, errors.New("pipeline: concurrency cannot be negative"))
	}
	return errs
}
