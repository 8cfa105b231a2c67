// Package sqlite provides a SQLite-backed queue transport. Failed messages are
// kept in a dead_letter_queue table that the redrive worker can lease from.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/pulseflow/internal/store"
	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/sqlqueue"
)

// TransportName is the name used to register this transport.
const TransportName = "sqlite"

// DefaultFile is used when no file is configured.
const DefaultFile = "pulseflow_queue.db"

// Capabilities of the sqlite transport.
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
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL,
	available_at INTEGER NOT NULL,
	locked_until INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_topic_available ON messages(topic, available_at);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	original_topic TEXT NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT,
	error_message TEXT,
	failed_at INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	locked_until INTEGER
);
CREATE INDEX IF NOT EXISTS idx_dlq_topic ON dead_letter_queue(original_topic);
`

// Dialect is the sqlqueue dialect for SQLite. SQLite serializes writers, so no
// row locking clause is needed.
func Dialect() sqlqueue.Dialect {
	d, _ := store.DialectFor(store.DriverSQLite)
	return sqlqueue.Dialect{Dialect: d, Schema: schema}
}

func init() {
	transport.Register(TransportName, Build, Capabilities)
}

// Build opens the configured file.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	q, err := New(ctx, Config{FilePath: cfg.GetSQLiteFile()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: q, Subscriber: q}, nil
}

// Config holds SQLite-specific configuration.
type Config struct {
	// FilePath is the database file. ":memory:" gives a private in-memory database.
	FilePath string
	sqlqueue.Config
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultFile
	}
	return c
}

// New opens the database in WAL mode with a single connection.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*sqlqueue.Queue, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open(store.DriverSQLite, cfg.FilePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection keeps an in-memory database alive and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	q, err := sqlqueue.New(ctx, db, Dialect(), cfg.Config, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}
