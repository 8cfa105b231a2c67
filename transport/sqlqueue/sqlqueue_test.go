package sqlqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/transport/sqlite"
	"github.com/drblury/pulseflow/transport/sqlqueue"
)

const topic = "pulse.ingress"

func newQueue(t *testing.T, maxRetries int) *sqlqueue.Queue {
	t.Helper()
	q, err := sqlite.New(context.Background(), sqlite.Config{
		FilePath: ":memory:",
		Config: sqlqueue.Config{
			PollInterval: 5 * time.Millisecond,
			MaxRetries:   maxRetries,
			RetryBackoff: time.Millisecond,
		},
	}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func receive(t *testing.T, msgs <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-msgs:
		require.NotNil(t, msg)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func seedDeadLetters(t *testing.T, q *sqlqueue.Queue, topic string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := q.DB().Exec(`INSERT INTO dead_letter_queue (uuid, original_topic, payload, metadata, error_message, failed_at, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			watermill.NewULID(), topic, []byte(`{"n":1}`), `{"source":"velib"}`, "schema", time.Now().UnixMilli(), 0)
		require.NoError(t, err)
	}
}

func TestPublishSubscribeAck(t *testing.T) {
	q := newQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := message.NewMessage("m-1", []byte(`{"source":"velib"}`))
	msg.Metadata.Set("source", "velib")
	require.NoError(t, q.Publish(topic, msg))

	pending, err := q.GetPendingCount(topic)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	msgs, err := q.Subscribe(ctx, topic)
	require.NoError(t, err)

	got := receive(t, msgs)
	assert.Equal(t, "m-1", got.UUID)
	assert.Equal(t, `{"source":"velib"}`, string(got.Payload))
	assert.Equal(t, "velib", got.Metadata.Get("source"))
	got.Ack()

	assert.Eventually(t, func() bool {
		n, err := q.GetPendingCount(topic)
		return err == nil && n == 0
	}, time.Second, 5*time.Millisecond)
}

func TestNackRedeliversThenDeadLetters(t *testing.T) {
	q := newQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(topic, message.NewMessage("m-1", []byte(`{}`))))
	msgs, err := q.Subscribe(ctx, topic)
	require.NoError(t, err)

	receive(t, msgs).Nack()
	receive(t, msgs).Nack()

	assert.Eventually(t, func() bool {
		n, err := q.GetDLQCount(topic)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	dead, err := q.ListDLQMessages(topic, 10, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "m-1", dead[0].UUID)
	assert.Equal(t, "max retries exceeded", dead[0].ErrorMessage)
	assert.Equal(t, 1, dead[0].RetryCount)

	pending, err := q.GetPendingCount(topic)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPermanentFailureDeadLettersImmediately(t *testing.T) {
	q := newQueue(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := message.NewMessage("m-1", []byte(`{"bad":true}`))
	msg.Metadata.Set("source", "velib")
	require.NoError(t, q.Publish(topic, msg))
	msgs, err := q.Subscribe(ctx, topic)
	require.NoError(t, err)

	got := receive(t, msgs)
	got.Metadata.Set(metadata.KeyFailureClass, "schema")
	got.Metadata.Set(metadata.KeyFailurePermanent, "true")
	got.Nack()

	assert.Eventually(t, func() bool {
		n, err := q.GetDLQCount(topic)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	dead, err := q.ListDLQMessages(topic, 10, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "permanent failure: schema", dead[0].ErrorMessage)
	assert.Equal(t, 0, dead[0].RetryCount)
	assert.Equal(t, `{"bad":true}`, string(dead[0].Payload))
	assert.Equal(t, "velib", dead[0].Metadata["source"])
	assert.Equal(t, "schema", dead[0].Metadata[metadata.KeyFailureClass])
}

func TestLeaseDLQ(t *testing.T) {
	q := newQueue(t, 3)
	ctx := context.Background()
	seedDeadLetters(t, q, topic, 3)
	seedDeadLetters(t, q, "pulse.other", 1)

	first, err := q.LeaseDLQ(ctx, topic, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Less(t, first[0].ID, first[1].ID)
	assert.Equal(t, topic, first[0].OriginalTopic)
	assert.Equal(t, "velib", first[0].Metadata["source"])

	rest, err := q.LeaseDLQ(ctx, topic, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Greater(t, rest[0].ID, first[1].ID)

	none, err := q.LeaseDLQ(ctx, topic, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, q.AckDLQ(ctx, []int64{first[0].ID, first[1].ID}))
	n, err := q.GetDLQCount(topic)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := q.GetDLQCount("")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestLeaseExpiry(t *testing.T) {
	q := newQueue(t, 3)
	ctx := context.Background()
	seedDeadLetters(t, q, topic, 2)

	leased, err := q.LeaseDLQ(ctx, topic, 2, -time.Second)
	require.NoError(t, err)
	require.Len(t, leased, 2)

	again, err := q.LeaseDLQ(ctx, topic, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 2, "expired leases are handed out again")

	ids := []int64{again[0].ID, again[1].ID}
	require.NoError(t, q.ExtendDLQLease(ctx, ids, -time.Second))
	expired, err := q.LeaseDLQ(ctx, topic, 2, time.Minute)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	require.NoError(t, q.ExtendDLQLease(ctx, ids, time.Minute))
	held, err := q.LeaseDLQ(ctx, topic, 2, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestLeaseNoOps(t *testing.T) {
	q := newQueue(t, 3)
	ctx := context.Background()

	msgs, err := q.LeaseDLQ(ctx, topic, 0, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, msgs)
	assert.NoError(t, q.ExtendDLQLease(ctx, nil, time.Minute))
	assert.NoError(t, q.AckDLQ(ctx, nil))
}

func TestPurgeAndList(t *testing.T) {
	q := newQueue(t, 3)
	seedDeadLetters(t, q, topic, 3)
	seedDeadLetters(t, q, "pulse.other", 2)

	page, err := q.ListDLQMessages(topic, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Greater(t, page[0].ID, page[1].ID)

	tail, err := q.ListDLQMessages(topic, 2, 2)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	all, err := q.ListDLQMessages("", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	purged, err := q.PurgeDLQ(topic)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	purged, err = q.PurgeDLQ("")
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}

func TestClosed(t *testing.T) {
	q := newQueue(t, 3)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Publish(topic, message.NewMessage("m-1", nil)), sqlqueue.ErrClosed)
	_, err := q.Subscribe(context.Background(), topic)
	assert.ErrorIs(t, err, sqlqueue.ErrClosed)
}

func TestCheck(t *testing.T) {
	q := newQueue(t, 3)
	require.NoError(t, q.Check(context.Background()))

	_, err := q.DB().Exec(`DROP TABLE messages`)
	require.NoError(t, err)
	assert.ErrorContains(t, q.Check(context.Background()), "sqlqueue check")

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Check(context.Background()), sqlqueue.ErrClosed)
}
