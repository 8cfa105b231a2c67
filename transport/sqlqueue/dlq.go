package sqlqueue

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/transport"
)

var (
	_ transport.DLQManager        = (*Queue)(nil)
	_ transport.DLQLister         = (*Queue)(nil)
	_ transport.DLQLeaser         = (*Queue)(nil)
	_ transport.QueueIntrospector = (*Queue)(nil)
)

const dlqColumns = `id, uuid, original_topic, payload, metadata, error_message, failed_at, retry_count`

// LeaseDLQ locks up to max dead-lettered messages of topic for lease and
// returns them oldest first.
func (q *Queue) LeaseDLQ(ctx context.Context, topic string, max int, lease time.Duration) ([]transport.DLQMessage, error) {
	if max <= 0 {
		return nil, nil
	}
	now := q.now()
	rows, err := q.db.QueryContext(ctx, q.query(`
		UPDATE %[1]sdead_letter_queue SET locked_until = ?
		WHERE id IN (
			SELECT id FROM %[1]sdead_letter_queue
			WHERE original_topic = ? AND (locked_until IS NULL OR locked_until < ?)
			ORDER BY id
			LIMIT ? %[2]s
		)
		RETURNING `+dlqColumns),
		millis(now.Add(lease)), topic, millis(now), max)
	if err != nil {
		return nil, fmt.Errorf("lease dead letters: %w", err)
	}
	msgs, err := scanDLQ(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING order is unspecified
	slices.SortFunc(msgs, func(a, b transport.DLQMessage) int { return cmp.Compare(a.ID, b.ID) })
	return msgs, nil
}

// ExtendDLQLease pushes the lease of ids to now+lease.
func (q *Queue) ExtendDLQLease(ctx context.Context, ids []int64, lease time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inList(ids)
	args = append([]any{millis(q.now().Add(lease))}, args...)
	if _, err := q.db.ExecContext(ctx, q.query(`UPDATE %[1]sdead_letter_queue SET locked_until = ? WHERE id IN (`+in+`)`), args...); err != nil {
		return fmt.Errorf("extend dead letter lease: %w", err)
	}
	return nil
}

// AckDLQ deletes ids from the dead letter table.
func (q *Queue) AckDLQ(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inList(ids)
	if _, err := q.db.ExecContext(ctx, q.query(`DELETE FROM %[1]sdead_letter_queue WHERE id IN (`+in+`)`), args...); err != nil {
		return fmt.Errorf("ack dead letters: %w", err)
	}
	return nil
}

// GetPendingCount returns the number of messages waiting on topic.
func (q *Queue) GetPendingCount(topic string) (int64, error) {
	return q.count(`SELECT COUNT(*) FROM %[1]smessages WHERE topic = ?`, topic)
}

// GetDLQCount returns the number of dead-lettered messages of topic, or of
// all topics when topic is empty.
func (q *Queue) GetDLQCount(topic string) (int64, error) {
	if topic == "" {
		return q.count(`SELECT COUNT(*) FROM %[1]sdead_letter_queue`)
	}
	return q.count(`SELECT COUNT(*) FROM %[1]sdead_letter_queue WHERE original_topic = ?`, topic)
}

// Check fails when the queue is closed or its tables cannot be read.
func (q *Queue) Check(ctx context.Context) error {
	if q.isClosed() {
		return ErrClosed
	}
	var n int64
	if err := q.db.QueryRowContext(ctx, q.query(`SELECT COUNT(*) FROM %[1]smessages WHERE 1 = 0`)).Scan(&n); err != nil {
		return fmt.Errorf("sqlqueue check: %w", err)
	}
	return nil
}

func (q *Queue) count(query string, args ...any) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(context.Background(), q.query(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// PurgeDLQ deletes the dead letters of topic, or all of them when topic is
// empty, and returns how many were removed.
func (q *Queue) PurgeDLQ(topic string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	ctx := context.Background()
	if topic == "" {
		res, err = q.db.ExecContext(ctx, q.query(`DELETE FROM %[1]sdead_letter_queue`))
	} else {
		res, err = q.db.ExecContext(ctx, q.query(`DELETE FROM %[1]sdead_letter_queue WHERE original_topic = ?`), topic)
	}
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return res.RowsAffected()
}

// ListDLQMessages pages through dead letters newest first.
func (q *Queue) ListDLQMessages(topic string, limit, offset int) ([]transport.DLQMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	ctx := context.Background()
	if topic == "" {
		rows, err = q.db.QueryContext(ctx, q.query(`SELECT `+dlqColumns+` FROM %[1]sdead_letter_queue ORDER BY id DESC LIMIT ? OFFSET ?`), limit, offset)
	} else {
		rows, err = q.db.QueryContext(ctx, q.query(`SELECT `+dlqColumns+` FROM %[1]sdead_letter_queue WHERE original_topic = ? ORDER BY id DESC LIMIT ? OFFSET ?`), topic, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return scanDLQ(rows)
}

func scanDLQ(rows *sql.Rows) ([]transport.DLQMessage, error) {
	defer rows.Close()
	var out []transport.DLQMessage
	for rows.Next() {
		var (
			m        transport.DLQMessage
			md       []byte
			errMsg   sql.NullString
			failedAt int64
		)
		if err := rows.Scan(&m.ID, &m.UUID, &m.OriginalTopic, &m.Payload, &md, &errMsg, &failedAt, &m.RetryCount); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		m.ErrorMessage = errMsg.String
		m.FailedAt = time.UnixMilli(failedAt).UTC()
		if len(md) > 0 {
			if err := jsoncodec.Unmarshal(md, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode dead letter %d metadata: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func inList(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
