// Package envelope decodes raw messages into the canonical Envelope and applies
// the normalization rules every later stage relies on.
package envelope

// Field names of the canonical envelope, in validation order.
const (
	FieldIngestTS  = "ingest_ts"
	FieldEventTS   = "event_ts"
	FieldSource    = "source"
	FieldEventType = "event_type"
	FieldKey       = "key"
	FieldPayload   = "payload"
)

// Envelope is the canonical unit flowing through the pipeline. Once returned by
// Normalize every field is populated and Payload is an object or an array.
type Envelope struct {
	IngestTS  string `json:"ingest_ts"`
	EventTS   string `json:"event_ts"`
	Source    string `json:"source"`
	EventType string `json:"event_type"`
	Key       string `json:"key"`
	Payload   any    `json:"payload"`
}

// Meta is the compact summary attached to dead-letter records.
type Meta struct {
	Source    string `json:"source"`
	EventType string `json:"event_type"`
	Key       string `json:"key"`
	IngestTS  string `json:"ingest_ts"`
	EventTS   string `json:"event_ts"`
}

// Meta summarizes the envelope without its payload.
func (e Envelope) Meta() *Meta {
	return &Meta{
		Source:    e.Source,
		EventType: e.EventType,
		Key:       e.Key,
		IngestTS:  e.IngestTS,
		EventTS:   e.EventTS,
	}
}

// Map returns the envelope as a generic object, the shape Decode produces.
func (e Envelope) Map() map[string]any {
	return map[string]any{
		FieldIngestTS:  e.IngestTS,
		FieldEventTS:   e.EventTS,
		FieldSource:    e.Source,
		FieldEventType: e.EventType,
		FieldKey:       e.Key,
		FieldPayload:   e.Payload,
	}
}

// PartialMeta pulls whatever summary fields are present in a decoded object that
// failed validation. It returns nil when none are present.
func PartialMeta(obj map[string]any) *Meta {
	m := &Meta{
		Source:    str(obj[FieldSource]),
		EventType: str(obj[FieldEventType]),
		Key:       str(obj[FieldKey]),
		IngestTS:  str(obj[FieldIngestTS]),
		EventTS:   str(obj[FieldEventTS]),
	}
	if *m == (Meta{}) {
		return nil
	}
	return m
}
