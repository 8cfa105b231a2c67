package mapping

import (
	"iter"

	"github.com/drblury/pulseflow/internal/envelope"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

// AnyEventType makes a mapper match every envelope.
const AnyEventType = "*"

// RawEventsTable lands every normalized envelope as received.
const RawEventsTable = "events_raw"

// RawEvent is one envelope with its payload kept as JSON text.
type RawEvent struct {
	IngestTS  string
	EventTS   string
	Source    string
	EventType string
	Key       string
	Payload   string
}

var rawEventColumns = []string{"ingest_ts", "event_ts", "source", "event_type", "key", "payload"}

func (r RawEvent) Table() string { return RawEventsTable }

// EntityID is empty: there is one raw row per message.
func (r RawEvent) EntityID() string  { return "" }
func (r RawEvent) Columns() []string { return rawEventColumns }
func (r RawEvent) Raw() string       { return r.Payload }

func (r RawEvent) Values() []any {
	return []any{r.IngestTS, r.EventTS, r.Source, r.EventType, r.Key, r.Payload}
}

type rawEventMapper struct{}

// RawEventMapper yields one RawEvent per envelope, whatever its event type.
func RawEventMapper() Mapper { return rawEventMapper{} }

func (rawEventMapper) Name() string      { return "raw_events" }
func (rawEventMapper) EventType() string { return AnyEventType }

func (rawEventMapper) Map(env envelope.Envelope) (iter.Seq[Row], error) {
	payload, err := jsoncodec.MarshalString(env.Payload)
	if err != nil {
		return nil, err
	}
	row := RawEvent{
		IngestTS:  env.IngestTS,
		EventTS:   env.EventTS,
		Source:    env.Source,
		EventType: env.EventType,
		Key:       env.Key,
		Payload:   payload,
	}
	return func(yield func(Row) bool) { yield(row) }, nil
}
