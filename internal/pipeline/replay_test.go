package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayFile(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	for range 30 {
		b.WriteString(stationSnapshot + "\n")
	}
	b.WriteString("\n{broken\n")

	summary, err := f.pipeline.ReplayFile(context.Background(), "backfill.ndjson", strings.NewReader(b.String()))
	require.NoError(t, err)

	assert.Equal(t, 31, summary.Lines)
	assert.Equal(t, 30, summary.Rows)
	assert.Equal(t, 30, summary.Written)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.DeadLetters)
	assert.Equal(t, 1, summary.ByFailure["decode"])

	recs := f.dlq.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "backfill.ndjson:32", recs[0].MessageID)
}

func TestReplayFileTwiceDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)

	for range 2 {
		_, err := f.pipeline.ReplayFile(context.Background(), "a.ndjson", strings.NewReader(stationSnapshot+"\n"))
		require.NoError(t, err)
	}

	n, err := f.store.CountRows(context.Background(), "station_status")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
