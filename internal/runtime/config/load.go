package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every config key read from the environment, e.g.
// PULSEFLOW_PIPELINE_STORE_DSN for pipeline.store_dsn.
const EnvPrefix = "PULSEFLOW"

// redriveEnv lists the unprefixed variables the redrive job is deployed with.
var redriveEnv = map[string]string{
	"redrive.source":                "DLQ_SUB",
	"redrive.destination":           "DEST_TOPIC",
	"redrive.max_messages":          "MAX_MESSAGES",
	"redrive.batch_size":            "BATCH_SIZE",
	"redrive.qps":                   "QPS",
	"redrive.dry_run":               "DRY_RUN",
	"redrive.ack_skipped":           "ACK_SKIPPED",
	"redrive.pull_timeout_s":        "PULL_TIMEOUT_S",
	"redrive.publish_timeout_s":     "PUBLISH_TIMEOUT_S",
	"redrive.max_ack_deadline_s":    "MAX_ACK_DEADLINE_S",
	"redrive.ack_deadline_buffer_s": "ACK_DEADLINE_BUFFER_S",
}

// Load reads defaults, an optional config file and the environment, in that
// order of precedence (environment wins). An empty path searches ./pulseflow.yaml
// and /etc/pulseflow/pulseflow.yaml and tolerates their absence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pulseflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pulseflow")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range redriveEnv {
		// prefixed form still works, the bare name is checked first
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Pipeline = cfg.Pipeline.WithDefaults()
	cfg.Redrive = cfg.Redrive.WithDefaults()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pubsub_system", "channel")
	v.SetDefault("log_level", "info")
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_client_id", "pulseflow")
	v.SetDefault("kafka_consumer_group", "pulseflow")
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("http_server_address", "")
	v.SetDefault("http_publisher_url", "")
	v.SetDefault("io_file", "")
	v.SetDefault("sqlite_file", "pulseflow_queue.db")
	v.SetDefault("postgres_url", "")
	v.SetDefault("poison_queue", DefaultHoldingTopic)
	v.SetDefault("aws_region", "")
	v.SetDefault("aws_account_id", "")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("aws_endpoint", "")
	v.SetDefault("retry_max_retries", 3)
	v.SetDefault("retry_initial_interval", "1s")
	v.SetDefault("retry_max_interval", "16s")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_port", 0)
	v.SetDefault("webui_enabled", false)
	v.SetDefault("webui_port", 8081)
	v.SetDefault("webui_cors_allowed_origins", []string{})

	v.SetDefault("pipeline.ingress_topic", DefaultIngressTopic)
	v.SetDefault("pipeline.store_driver", "")
	v.SetDefault("pipeline.store_dsn", "")
	v.SetDefault("pipeline.auto_migrate", false)
	v.SetDefault("pipeline.raw_landing", true)
	v.SetDefault("pipeline.dead_letter_table", DefaultDeadLetterTable)
	v.SetDefault("pipeline.max_raw_bytes", DefaultMaxRawBytes)
	v.SetDefault("pipeline.concurrency", DefaultConcurrency)
	v.SetDefault("pipeline.sink_max_attempts", 4)
	v.SetDefault("pipeline.sink_initial_interval_ms", 200)
	v.SetDefault("pipeline.push_port", 0)
	v.SetDefault("pipeline.push_path", DefaultPushPath)

	v.SetDefault("redrive.backend", DefaultRedriveBackendSQL)
	v.SetDefault("redrive.source", "")
	v.SetDefault("redrive.destination", DefaultIngressTopic)
	v.SetDefault("redrive.max_messages", DefaultMaxMessages)
	v.SetDefault("redrive.batch_size", DefaultBatchSize)
	v.SetDefault("redrive.qps", DefaultQPS)
	v.SetDefault("redrive.dry_run", false)
	v.SetDefault("redrive.ack_skipped", false)
	v.SetDefault("redrive.pull_timeout_s", DefaultPullTimeoutS)
	v.SetDefault("redrive.publish_timeout_s", DefaultPublishTimeoutS)
	v.SetDefault("redrive.max_ack_deadline_s", DefaultMaxLeaseS)
	v.SetDefault("redrive.ack_deadline_buffer_s", DefaultLeaseMarginS)
	v.SetDefault("redrive.min_ack_deadline_s", DefaultMinLeaseS)
	v.SetDefault("redrive.strip_prefixes", DefaultStripPrefixes)
	v.SetDefault("redrive.strip_keys", DefaultStripKeys)
}
