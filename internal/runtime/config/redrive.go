package config

import (
	"errors"
	"time"
)

// Redrive defaults. The lease constants follow the ack deadline bounds of the
// managed queues the worker was built for.
const (
	DefaultMaxMessages       = 50
	DefaultBatchSize         = 10
	DefaultQPS               = 5.0
	DefaultPullTimeoutS      = 10.0
	DefaultPublishTimeoutS   = 30.0
	DefaultMaxLeaseS         = 600
	DefaultLeaseMarginS      = 60
	DefaultMinLeaseS         = 10
	DefaultRedriveBackendSQL = "sqlite"
)

// DefaultStripPrefixes are attribute prefixes added by dead-letter machinery.
var DefaultStripPrefixes = []string{
	"CloudPubSubDeadLetter",
	"x-death",
	"reason_poisoned",
	"topic_poisoned",
	"handler_poisoned",
	"subscriber_poisoned",
	"failure_",
}

// DefaultStripKeys are drill flags set by operators when testing the DLQ path.
// Both spellings are in use.
var DefaultStripKeys = []string{"dlq_test", "dl_test"}

// RedriveConfig holds the environment-style redrive settings.
type RedriveConfig struct {
	// Backend selects the holding queue: "sqlite", "postgres" or "sqs".
	Backend string `mapstructure:"backend"`
	// Source identifies the holding queue: the original topic for SQL backends,
	// the queue URL for SQS.
	Source string `mapstructure:"source"`
	// Destination is the ingress topic to republish to.
	Destination string `mapstructure:"destination"`

	MaxMessages     int     `mapstructure:"max_messages"`
	BatchSize       int     `mapstructure:"batch_size"`
	QPS             float64 `mapstructure:"qps"`
	DryRun          bool    `mapstructure:"dry_run"`
	AckSkipped      bool    `mapstructure:"ack_skipped"`
	PullTimeoutS    float64 `mapstructure:"pull_timeout_s"`
	PublishTimeoutS float64 `mapstructure:"publish_timeout_s"`
	MaxLeaseS       int     `mapstructure:"max_ack_deadline_s"`
	LeaseMarginS    int     `mapstructure:"ack_deadline_buffer_s"`
	MinLeaseS       int     `mapstructure:"min_ack_deadline_s"`

	StripPrefixes []string `mapstructure:"strip_prefixes"`
	StripKeys     []string `mapstructure:"strip_keys"`
}

// WithDefaults returns a copy with zero values replaced. QPS is left alone since
// zero or negative disables throttling.
func (r RedriveConfig) WithDefaults() RedriveConfig {
	if r.Backend == "" {
		r.Backend = DefaultRedriveBackendSQL
	}
	if r.MaxMessages <= 0 {
		r.MaxMessages = DefaultMaxMessages
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultBatchSize
	}
	if r.PullTimeoutS <= 0 {
		r.PullTimeoutS = DefaultPullTimeoutS
	}
	if r.PublishTimeoutS <= 0 {
		r.PublishTimeoutS = DefaultPublishTimeoutS
	}
	if r.MaxLeaseS <= 0 {
		r.MaxLeaseS = DefaultMaxLeaseS
	}
	if r.LeaseMarginS <= 0 {
		r.LeaseMarginS = DefaultLeaseMarginS
	}
	if r.MinLeaseS <= 0 {
		r.MinLeaseS = DefaultMinLeaseS
	}
	if r.StripPrefixes == nil {
		r.StripPrefixes = append([]string(nil), DefaultStripPrefixes...)
	}
	if r.StripKeys == nil {
		r.StripKeys = append([]string(nil), DefaultStripKeys...)
	}
	return r
}

func (r RedriveConfig) PullTimeout() time.Duration    { return seconds(r.PullTimeoutS) }
func (r RedriveConfig) PublishTimeout() time.Duration { return seconds(r.PublishTimeoutS) }
func (r RedriveConfig) MaxLease() time.Duration       { return time.Duration(r.MaxLeaseS) * time.Second }
func (r RedriveConfig) LeaseMargin() time.Duration {
	return time.Duration(r.LeaseMarginS) * time.Second
}
func (r RedriveConfig) MinLease() time.Duration { return time.Duration(r.MinLeaseS) * time.Second }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r RedriveConfig) validate() []error {
	var errs []error
	switch r.Backend {
	case "", "sqlite", "postgres", "sqs":
	default:
		errs = append(errs, errors.New("redrive: backend must be sqlite, postgres or sqs"))
	}
	if r.MaxMessages < 0 {
		errs = append(errs, errors.New("redrive: max messages cannot be negative"))
	}
	if r.BatchSize < 0 {
		errs = append(errs, errors.New("redrive: batch size cannot be negative"))
	}
	if r.PullTimeoutS < 0 || r.PublishTimeoutS < 0 {
		errs = append(errs, errors.New("redrive: timeouts cannot be negative"))
	}
	if r.MaxLeaseS > 0 && r.LeaseMarginS >= r.MaxLeaseS {
		errs = append(errs, errors.New("redrive: ack deadline buffer must be below the max ack deadline"))
	}
	if r.MaxLeaseS > 0 && r.MinLeaseS > r.MaxLeaseS {
		errs = append(errs, errors.New("redrive: min ack deadline cannot exceed the max ack deadline"))
	}
	return errs
}
