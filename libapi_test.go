package pulseflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMessageHandlerRequiresService(t *testing.T) {
	err := RegisterMessageHandler(nil, MessageHandlerRegistration{})
	assert.True(t, errors.Is(err, ErrServiceRequired))
}

func TestDecodeAndNormalizeExport(t *testing.T) {
	env, err := DecodeAndNormalize(`{"ingest_ts":"2026-01-24T16:00:00Z","source":"velib","event_type":"station_status_snapshot",` +
		`"key":"k","payload":{"data":{"stations":[]}}}`)
	require.NoError(t, err)
	assert.Equal(t, "velib", env.Source)

	_, err = DecodeAndNormalize("{broken")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPipelineExports(t *testing.T) {
	st, err := OpenStore("sqlite3", ":memory:")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.EnsureSchema(context.Background(), "curated_dlq"))

	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	writer, err := NewSinkWriter(st)
	require.NoError(t, err)
	p, err := NewPipeline(PipelineDependencies{
		Writer:      writer,
		DeadLetters: NewStoreDeadLetterSink(st, "curated_dlq"),
		Logger:      logger,
	})
	require.NoError(t, err)

	out := p.Process(context.Background(), Input{MessageID: "m-1", Data: "{broken"})
	assert.Equal(t, "decode", out.Failure())
	require.Len(t, out.DeadLetters, 1)
	assert.Equal(t, StageParseNormalize, out.DeadLetters[0].Stage)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	_, err := Marshal(payload)
	require.NoError(t, err)
	_, err = MarshalIndent(payload, "", "  ")
	require.NoError(t, err)
	require.NoError(t, Unmarshal([]byte(`{"hello":"world"}`), &payload))
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	assert.Equal(t, "value", md["key"])
}

func TestRedriveExitCodes(t *testing.T) {
	assert.Equal(t, ExitOK, RedriveSummary{}.ExitCode())
	assert.Equal(t, ExitDegraded, RedriveSummary{Failed: 1}.ExitCode())
	assert.Equal(t, 1, ExitFatal)
}
