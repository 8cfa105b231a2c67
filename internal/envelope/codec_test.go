package envelope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
)

const stationSnapshot = `{
	"ingest_ts": "2026-01-24T16:00:00Z",
	"source": "velib",
	"event_type": "station_status_snapshot",
	"key": "velib:station_status_snapshot",
	"payload": {"data": {"stations": [{"station_id": 123, "num_bikes_available": 7}]}}
}`

func TestDecodeAcceptsEveryRepresentation(t *testing.T) {
	fromStruct, err := structpb.NewStruct(map[string]any{"ingest_ts": "2026-01-24T16:00:00Z", "key": "k"})
	require.NoError(t, err)

	inputs := map[string]any{
		"string":   stationSnapshot,
		"bytes":    []byte(stationSnapshot),
		"raw":      json.RawMessage(stationSnapshot),
		"object":   map[string]any{"ingest_ts": "2026-01-24T16:00:00Z", "key": "k"},
		"structpb": fromStruct,
		"envelope": Envelope{IngestTS: "2026-01-24T16:00:00Z", Key: "k"},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			obj, err := Decode(in)
			require.NoError(t, err)
			assert.Equal(t, "2026-01-24T16:00:00Z", obj["ingest_ts"])
		})
	}
}

func TestDecodeKeepsIntegerLiterals(t *testing.T) {
	obj, err := Decode(stationSnapshot)
	require.NoError(t, err)

	stations := obj["payload"].(map[string]any)["data"].(map[string]any)["stations"].([]any)
	assert.Equal(t, json.Number("123"), stations[0].(map[string]any)["station_id"])
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		reason string
	}{
		{"nil", nil, "empty input"},
		{"empty string", "", "empty input"},
		{"whitespace bytes", []byte("  \n\t "), "empty input"},
		{"invalid json", "{not json", "invalid JSON"},
		{"array", `[1,2,3]`, "got array"},
		{"scalar", `"just a string"`, "got string"},
		{"number", `42`, "got number"},
		{"unsupported", 3.14, "unsupported input type float64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errspkg.ErrDecode))

			var decodeErr *errspkg.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Contains(t, decodeErr.Reason, tt.reason)
		})
	}
}

func TestDecodeDoesNotAliasObjectInput(t *testing.T) {
	in := map[string]any{"key": "k"}
	obj, err := Decode(in)
	require.NoError(t, err)

	obj["key"] = "changed"
	assert.Equal(t, "k", in["key"])
}
