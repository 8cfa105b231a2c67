package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

// Keys used when a payload has to be wrapped into an object.
const (
	RawPayloadKey = "raw_payload"
	ValueKey      = "value"
)

// Normalize validates a decoded object and applies the envelope defaults. The
// input map is not modified.
func Normalize(obj map[string]any) (Envelope, error) {
	ingestTS := str(obj[FieldIngestTS])
	if ingestTS == "" {
		return Envelope{}, &errspkg.ValidationError{Field: FieldIngestTS}
	}
	eventTS := str(obj[FieldEventTS])
	if eventTS == "" {
		eventTS = ingestTS
	}

	env := Envelope{IngestTS: ingestTS, EventTS: eventTS}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{FieldSource, &env.Source},
		{FieldEventType, &env.EventType},
		{FieldKey, &env.Key},
	} {
		*f.dst = str(obj[f.name])
		if *f.dst == "" {
			return Envelope{}, &errspkg.ValidationError{Field: f.name}
		}
	}

	payload, ok := obj[FieldPayload]
	if !ok || payload == nil {
		return Envelope{}, &errspkg.ValidationError{Field: FieldPayload}
	}
	env.Payload = coercePayload(payload)
	return env, nil
}

// DecodeAndNormalize runs Decode then Normalize.
func DecodeAndNormalize(input any) (Envelope, error) {
	obj, err := Decode(input)
	if err != nil {
		return Envelope{}, err
	}
	return Normalize(obj)
}

// coercePayload guarantees an object or array. Encoded strings are decoded and a
// raw_payload wrapper is used only when decoding fails. Scalars, decoded or not,
// are wrapped under value.
func coercePayload(p any) any {
	if s, ok := p.(string); ok {
		var decoded any
		if err := jsoncodec.UnmarshalNumber([]byte(s), &decoded); err != nil {
			return map[string]any{RawPayloadKey: s}
		}
		p = decoded
	}
	switch v := p.(type) {
	case map[string]any, []any:
		return v
	default:
		return map[string]any{ValueKey: v}
	}
}

// str renders scalar envelope fields as text. Numbers keep their literal form.
// Booleans, objects and arrays are not identifiers and count as missing.
func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool, map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
