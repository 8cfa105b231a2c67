// Package deadletter defines the record produced by every stage failure and the
// sinks those records are written to.
package deadletter

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/drblury/pulseflow/internal/envelope"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

// Stage names the pipeline step a record was captured at.
type Stage string

const (
	StageParseNormalize Stage = "parse_normalize"
	StageDomainMapping  Stage = "domain_mapping"
	StageSinkInsert     Stage = "sink_insert"
)

// DefaultMaxRawBytes bounds Record.Raw so records fit sink row limits.
const DefaultMaxRawBytes = 10000

// Record is the durable trace of one failed input. Records are never mutated
// once built.
type Record struct {
	DLQTS        time.Time      `json:"dlq_ts"`
	Stage        Stage          `json:"stage"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	Raw          string         `json:"raw"`
	EventMeta    *envelope.Meta `json:"event_meta"`
	RowJSON      *string        `json:"row_json"`
	SinkErrors   *string        `json:"sink_errors"`
	Destination  string         `json:"destination,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
}

// Builder creates records with a raw size limit and a clock.
type Builder struct {
	MaxRawBytes int
	Now         func() time.Time
}

// New builds a record for err at stage. ErrorType comes from the error
// taxonomy, or the Go type name of err for anything else.
func (b Builder) New(stage Stage, err error, raw string, meta *envelope.Meta) Record {
	limit := b.MaxRawBytes
	if limit <= 0 {
		limit = DefaultMaxRawBytes
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	rec := Record{
		DLQTS:     now().UTC(),
		Stage:     stage,
		ErrorType: errspkg.TypeName(err),
		Raw:       Truncate(raw, limit),
		EventMeta: meta,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	return rec
}

// New builds a record with the default raw limit.
func New(stage Stage, err error, raw string, meta *envelope.Meta, now time.Time) Record {
	return Builder{Now: func() time.Time { return now }}.New(stage, err, raw, meta)
}

// WithRow returns a copy carrying the serialized row and sink errors of a
// sink_insert failure.
func (r Record) WithRow(destination, rowJSON string, sinkErrors []string) Record {
	r.Destination = destination
	r.RowJSON = &rowJSON
	errs, err := jsoncodec.MarshalString(sinkErrors)
	if err != nil || sinkErrors == nil {
		errs = "[]"
	}
	r.SinkErrors = &errs
	return r
}

// WithMessageID returns a copy tagged with the transport message id.
func (r Record) WithMessageID(id string) Record {
	r.MessageID = id
	return r
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max < 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// RawString renders any pipeline input as text for Record.Raw.
func RawString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.RawMessage:
		return string(x)
	default:
		s, err := jsoncodec.MarshalString(x)
		if err != nil {
			return ""
		}
		return s
	}
}

// MetaJSON serializes the event meta, nil when there is none.
func (r Record) MetaJSON() *string {
	if r.EventMeta == nil {
		return nil
	}
	s, err := jsoncodec.MarshalString(r.EventMeta)
	if err != nil {
		return nil
	}
	return &s
}
