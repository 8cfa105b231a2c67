// Package sqlqueue is the SQL-table message queue behind the sqlite and
// postgres transports. Messages live in a messages table polled with a row
// lock; failed messages move to a dead_letter_queue table that the redrive
// worker drains under a lease.
package sqlqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/internal/store"
)

// Defaults applied by Config.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultLockTimeout  = 30 * time.Second
	DefaultRetryBackoff = time.Second
)

// ErrClosed is returned when publishing or subscribing on a closed queue.
var ErrClosed = errors.New("sqlqueue: transport is closed")

// Dialect holds the per-database parts of the queue SQL.
type Dialect struct {
	store.Dialect
	// Prefix qualifies table names, e.g. "pulseflow." for a postgres schema.
	Prefix string
	// Schema is the DDL creating the messages and dead_letter_queue tables.
	Schema string
	// SkipLocked is appended to row-claiming sub-selects.
	SkipLocked string
}

// Config tunes polling and redelivery.
type Config struct {
	PollInterval time.Duration
	// MaxRetries is the number of redeliveries before a message is dead-lettered.
	MaxRetries int
	// LockTimeout is how long a delivered message stays invisible to other pollers.
	LockTimeout time.Duration
	// RetryBackoff is the first redelivery delay, doubled on each retry.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

// Queue implements message.Publisher and message.Subscriber over db, plus the
// transport DLQ interfaces.
type Queue struct {
	db      *sql.DB
	dialect Dialect
	config  Config
	logger  watermill.LoggerAdapter
	now     func() time.Time

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
	wg         sync.WaitGroup
}

// New creates the tables when missing and returns the queue. The queue owns db
// and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect, cfg Config, logger watermill.LoggerAdapter) (*Queue, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	q := &Queue{
		db:         db,
		dialect:    dialect,
		config:     cfg.withDefaults(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		closedChan: make(chan struct{}),
	}
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("initialize queue schema: %w", err)
	}
	return q, nil
}

// DB returns the underlying connection pool.
func (q *Queue) DB() *sql.DB { return q.db }

// Times are stored as unix milliseconds so ordering and comparison behave the
// same on every driver.
func millis(t time.Time) int64 { return t.UnixMilli() }

func (q *Queue) query(format string) string {
	return q.dialect.Rebind(fmt.Sprintf(format, q.dialect.Prefix, q.dialect.SkipLocked))
}

func (q *Queue) isClosed() bool {
	q.closedMu.RLock()
	defer q.closedMu.RUnlock()
	return q.closed
}

// Publish inserts messages in one transaction.
func (q *Queue) Publish(topic string, messages ...*message.Message) error {
	if q.isClosed() {
		return ErrClosed
	}
	ctx := context.Background()
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer q.rollback(tx)

	insert := q.query(`INSERT INTO %[1]smessages (uuid, topic, payload, metadata, created_at, available_at) VALUES (?, ?, ?, ?, ?, ?)`)
	now := millis(q.now())
	for _, msg := range messages {
		md, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, msg.UUID, topic, []byte(msg.Payload), string(md), now, now); err != nil {
			return fmt.Errorf("insert message %s: %w", msg.UUID, err)
		}
	}
	return tx.Commit()
}

// Subscribe polls topic and delivers one message at a time, settling each
// before claiming the next.
func (q *Queue) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if q.isClosed() {
		return nil, ErrClosed
	}
	out := make(chan *message.Message)
	q.wg.Add(1)
	go q.poll(ctx, topic, out)
	return out, nil
}

func (q *Queue) poll(ctx context.Context, topic string, out chan *message.Message) {
	defer q.wg.Done()
	defer close(out)

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedChan:
			return
		case <-ticker.C:
			// drain everything available before waiting for the next tick
			for q.deliverNext(ctx, topic, out) {
			}
		}
	}
}

type claimed struct {
	id         int64
	retryCount int
	msg        *message.Message
}

func (q *Queue) claim(ctx context.Context, topic string) (*claimed, error) {
	now := q.now()
	row := q.db.QueryRowContext(ctx, q.query(`
		UPDATE %[1]smessages SET locked_until = ?
		WHERE id = (
			SELECT id FROM %[1]smessages
			WHERE topic = ? AND available_at <= ? AND (locked_until IS NULL OR locked_until < ?)
			ORDER BY available_at, id
			LIMIT 1 %[2]s
		)
		RETURNING id, uuid, payload, metadata, retry_count`),
		millis(now.Add(q.config.LockTimeout)), topic, millis(now), millis(now))

	var (
		c       claimed
		uuid    string
		payload []byte
		md      []byte
	)
	if err := row.Scan(&c.id, &uuid, &payload, &md, &c.retryCount); err != nil {
		return nil, err
	}
	c.msg = message.NewMessage(uuid, payload)
	if len(md) > 0 {
		if err := jsoncodec.Unmarshal(md, &c.msg.Metadata); err != nil {
			q.logger.Error("sqlqueue metadata unreadable", err, watermill.LogFields{"uuid": uuid})
		}
		if c.msg.Metadata == nil {
			c.msg.Metadata = make(message.Metadata)
		}
	}
	return &c, nil
}

// deliverNext reports whether a message was delivered and settled.
func (q *Queue) deliverNext(ctx context.Context, topic string, out chan *message.Message) bool {
	c, err := q.claim(ctx, topic)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
			q.logger.Error("sqlqueue claim failed", err, watermill.LogFields{"topic": topic})
		}
		return false
	}

	select {
	case out <- c.msg:
	case <-ctx.Done():
		q.unlock(c.id)
		return false
	case <-q.closedChan:
		q.unlock(c.id)
		return false
	}

	select {
	case <-c.msg.Acked():
		q.exec(q.query(`DELETE FROM %[1]smessages WHERE id = ?`), c.id)
		return true
	case <-c.msg.Nacked():
		q.nack(c, topic)
		return true
	case <-ctx.Done():
	case <-q.closedChan:
	}
	q.unlock(c.id)
	return false
}

// nack dead-letters permanent failures and messages out of retries, and
// otherwise reschedules with exponential backoff.
func (q *Queue) nack(c *claimed, topic string) {
	switch {
	case c.msg.Metadata.Get(metadata.KeyFailurePermanent) == "true":
		q.deadLetter(c, topic, "permanent failure: "+c.msg.Metadata.Get(metadata.KeyFailureClass))
	case c.retryCount >= q.config.MaxRetries:
		q.deadLetter(c, topic, "max retries exceeded")
	default:
		availableAt := q.now().Add(q.config.RetryBackoff << c.retryCount)
		q.exec(q.query(`UPDATE %[1]smessages SET retry_count = retry_count + 1, locked_until = NULL, available_at = ? WHERE id = ?`),
			millis(availableAt), c.id)
	}
}

// deadLetter moves the message with the metadata it was nacked with, so the
// failure attributes set by the handler are kept.
func (q *Queue) deadLetter(c *claimed, topic, reason string) {
	ctx := context.Background()
	md, err := jsoncodec.Marshal(c.msg.Metadata)
	if err != nil {
		q.logger.Error("sqlqueue metadata not serializable", err, watermill.LogFields{"uuid": c.msg.UUID})
		md = []byte("{}")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		q.logger.Error("sqlqueue dead-letter begin failed", err, nil)
		return
	}
	defer q.rollback(tx)

	if _, err := tx.ExecContext(ctx, q.query(`
		INSERT INTO %[1]sdead_letter_queue (uuid, original_topic, payload, metadata, error_message, failed_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.msg.UUID, topic, []byte(c.msg.Payload), string(md), reason, millis(q.now()), c.retryCount); err != nil {
		q.logger.Error("sqlqueue dead-letter insert failed", err, watermill.LogFields{"uuid": c.msg.UUID})
		return
	}
	if _, err := tx.ExecContext(ctx, q.query(`DELETE FROM %[1]smessages WHERE id = ?`), c.id); err != nil {
		q.logger.Error("sqlqueue dead-letter delete failed", err, watermill.LogFields{"uuid": c.msg.UUID})
		return
	}
	if err := tx.Commit(); err != nil {
		q.logger.Error("sqlqueue dead-letter commit failed", err, watermill.LogFields{"uuid": c.msg.UUID})
		return
	}
	q.logger.Info("message dead-lettered", watermill.LogFields{"uuid": c.msg.UUID, "topic": topic, "reason": reason})
}

func (q *Queue) unlock(id int64) {
	q.exec(q.query(`UPDATE %[1]smessages SET locked_until = NULL WHERE id = ?`), id)
}

func (q *Queue) exec(query string, args ...any) {
	if _, err := q.db.ExecContext(context.Background(), query, args...); err != nil {
		q.logger.Error("sqlqueue statement failed", err, nil)
	}
}

func (q *Queue) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		q.logger.Error("sqlqueue rollback failed", err, nil)
	}
}

// Close stops the pollers and closes the database.
func (q *Queue) Close() error {
	q.closedMu.Lock()
	if q.closed {
		q.closedMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closedChan)
	q.closedMu.Unlock()

	q.wg.Wait()
	return q.db.Close()
}
