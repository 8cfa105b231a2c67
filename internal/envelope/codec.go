package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

// Decode turns one message body into a generic object. Text and byte input must
// hold a JSON object; structured input is accepted as is. Numbers are kept as
// json.Number.
func Decode(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return nil, &errspkg.DecodeError{Reason: "empty input"}
	case []byte:
		return decodeBytes(v)
	case json.RawMessage:
		return decodeBytes(v)
	case string:
		return decodeBytes([]byte(v))
	case map[string]any:
		if v == nil {
			return nil, &errspkg.DecodeError{Reason: "empty input"}
		}
		return cloneObject(v), nil
	case *structpb.Struct:
		if v == nil {
			return nil, &errspkg.DecodeError{Reason: "empty input"}
		}
		return structToObject(v)
	case Envelope:
		return v.Map(), nil
	case *Envelope:
		if v == nil {
			return nil, &errspkg.DecodeError{Reason: "empty input"}
		}
		return v.Map(), nil
	default:
		return nil, &errspkg.DecodeError{Reason: fmt.Sprintf("unsupported input type %T", input)}
	}
}

func decodeBytes(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &errspkg.DecodeError{Reason: "empty input"}
	}
	var decoded any
	if err := jsoncodec.UnmarshalNumber(trimmed, &decoded); err != nil {
		return nil, &errspkg.DecodeError{Reason: "invalid JSON", Cause: err}
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &errspkg.DecodeError{Reason: "expected a JSON object, got " + kindOf(decoded)}
	}
	return obj, nil
}

// structToObject round-trips through JSON so numbers come out as json.Number, the
// same as text input.
func structToObject(s *structpb.Struct) (map[string]any, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, &errspkg.DecodeError{Reason: "invalid struct", Cause: err}
	}
	return decodeBytes(data)
}

func cloneObject(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	}
}
