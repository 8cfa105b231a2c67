// Package mapping turns normalized envelopes into curated rows, one per domain
// entity found in the payload.
package mapping

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/drblury/pulseflow/internal/envelope"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

// Row is one curated record. Columns and Values line up index by index.
type Row interface {
	Table() string
	EntityID() string
	Columns() []string
	Values() []any
	// Raw is the source entry serialized verbatim.
	Raw() string
}

// Mapper converts envelopes of one event type into rows. Envelopes of other
// types yield an empty sequence and no error.
type Mapper interface {
	Name() string
	EventType() string
	Map(env envelope.Envelope) (iter.Seq[Row], error)
}

// Set runs several mappers over one stream.
type Set []Mapper

// DefaultSet holds every mapper shipped with pulseflow.
func DefaultSet() Set {
	return Set{StationStatusMapper(), StationInformationMapper(), DisruptionMapper()}
}

// Map concatenates the rows of every matching mapper, in set order. A mapper
// matches on its exact event type or on AnyEventType. Shape errors are reported
// before any row is produced.
func (s Set) Map(env envelope.Envelope) (iter.Seq[Row], error) {
	seqs := make([]iter.Seq[Row], 0, 1)
	for _, m := range s {
		if t := m.EventType(); t != AnyEventType && t != env.EventType {
			continue
		}
		seq, err := m.Map(env)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return func(yield func(Row) bool) {
		for _, seq := range seqs {
			for row := range seq {
				if !yield(row) {
					return
				}
			}
		}
	}, nil
}

// Collect drains a row sequence.
func Collect(seq iter.Seq[Row]) []Row {
	var rows []Row
	if seq == nil {
		return rows
	}
	for r := range seq {
		rows = append(rows, r)
	}
	return rows
}

func emptyRows(func(Row) bool) {}

// entryMapper maps every object entry of a payload collection through build.
type entryMapper struct {
	name      string
	eventType string
	entries   func(payload any) ([]any, error)
	build     func(env envelope.Envelope, entry map[string]any) (Row, bool)
}

func (m entryMapper) Name() string      { return m.name }
func (m entryMapper) EventType() string { return m.eventType }

func (m entryMapper) Map(env envelope.Envelope) (iter.Seq[Row], error) {
	if env.EventType != m.eventType {
		return emptyRows, nil
	}
	entries, err := m.entries(env.Payload)
	if err != nil {
		return nil, err
	}
	return func(yield func(Row) bool) {
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			row, ok := m.build(env, entry)
			if !ok {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}, nil
}

// nestedList walks payload along path and returns the list at its end. A
// missing step yields nothing; a step of the wrong kind is a ShapeError.
func nestedList(payload any, path ...string) ([]any, error) {
	current := payload
	walked := "payload"
	for i, step := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &errspkg.ShapeError{Path: walked, Want: "an object", Got: kindOf(current)}
		}
		next, ok := obj[step]
		if !ok || next == nil {
			return nil, nil
		}
		current = next
		walked += "." + step
		if i == len(path)-1 {
			list, ok := current.([]any)
			if !ok {
				return nil, &errspkg.ShapeError{Path: walked, Got: kindOf(current)}
			}
			return list, nil
		}
	}
	return nil, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return "unknown"
	}
}

func rawJSON(entry map[string]any) string {
	s, err := jsoncodec.MarshalString(entry)
	if err != nil {
		return ""
	}
	return s
}

// entityID string-coerces an identifier. Empty or missing ids give "" and the
// entry is dropped by the caller.
func entityID(v any) string {
	s := ToString(v)
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
