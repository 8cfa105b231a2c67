// Package postgres provides a PostgreSQL-backed queue transport. Concurrent
// consumers claim rows with FOR UPDATE SKIP LOCKED.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/drblury/pulseflow/internal/store"
	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/sqlqueue"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

// DefaultSchema holds the queue tables.
const DefaultSchema = "pulseflow"

// ErrConnectionString is returned when no connection string is configured.
var ErrConnectionString = errors.New("postgres connection string is required")

// Capabilities of the postgres transport.
var Capabilities = transport.Capabilities{
	Name:              TransportName,
	SupportsNativeDLQ: true,
	SupportsDLQLease:  true,
	SupportsOrdering:  true,
	SupportsAck:       true,
	SupportsNack:      true,
	SupportsBatching:  true,
}

const schema = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.messages (
	id BIGSERIAL PRIMARY KEY,
	uuid TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL,
	payload BYTEA NOT NULL,
	metadata TEXT,
	created_at BIGINT NOT NULL,
	available_at BIGINT NOT NULL,
	locked_until BIGINT,
	retry_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_topic_available ON %[1]s.messages(topic, available_at);

CREATE TABLE IF NOT EXISTS %[1]s.dead_letter_queue (
	id BIGSERIAL PRIMARY KEY,
	uuid TEXT NOT NULL,
	original_topic TEXT NOT NULL,
	payload BYTEA NOT NULL,
	metadata TEXT,
	error_message TEXT,
	failed_at BIGINT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	locked_until BIGINT
);
CREATE INDEX IF NOT EXISTS idx_dlq_topic ON %[1]s.dead_letter_queue(original_topic);
`

// Dialect is the sqlqueue dialect for tables in schemaName.
func Dialect(schemaName string) (sqlqueue.Dialect, error) {
	d, _ := store.DialectFor(store.DriverPostgres)
	if _, err := d.Quote(schemaName); err != nil {
		return sqlqueue.Dialect{}, err
	}
	// the schema statement is rendered with the bare name, tables with the prefix
	return sqlqueue.Dialect{
		Dialect:    d,
		Prefix:     schemaName + ".",
		Schema:     fmt.Sprintf(schema, schemaName),
		SkipLocked: "FOR UPDATE SKIP LOCKED",
	}, nil
}

func init() {
	transport.Register(TransportName, Build, Capabilities)
	transport.Register("postgresql", Build, Capabilities)
}

// Build connects with the configured URL.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	q, err := New(ctx, Config{ConnectionString: cfg.GetPostgresURL()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: q, Subscriber: q}, nil
}

// Config holds PostgreSQL-specific configuration.
type Config struct {
	ConnectionString string
	// SchemaName holds the queue tables. Defaults to DefaultSchema.
	SchemaName   string
	MaxOpenConns int
	MaxIdleConns int
	sqlqueue.Config
}

func (c Config) withDefaults() Config {
	if c.SchemaName == "" {
		c.SchemaName = DefaultSchema
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	return c
}

// New connects, pings and creates the schema.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*sqlqueue.Queue, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrConnectionString
	}
	cfg = cfg.withDefaults()

	dialect, err := Dialect(cfg.SchemaName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(store.DriverPostgres, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	q, err := sqlqueue.New(ctx, db, dialect, cfg.Config, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}
