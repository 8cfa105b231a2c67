package mapping

import "github.com/drblury/pulseflow/internal/envelope"

const (
	DisruptionEventType = "disruption"
	DisruptionTable     = "disruptions"
)

var disruptionFields = struct {
	id, cause, severity, title, message, lastUpdate, begin, end Field
}{
	id:         NewField("disruption_id", Key("disruption_id"), Key("id")),
	cause:      NewField("cause", Key("cause")),
	severity:   NewField("severity", Key("severity")),
	title:      NewField("title", Key("title")),
	message:    NewField("message", Key("message")),
	lastUpdate: NewField("last_update", Key("last_update"), Key("lastUpdate")),
	begin: NewField("period_begin",
		FirstOf("application_periods", "begin"),
		FirstOf("applicationPeriods", "begin"),
	),
	end: NewField("period_end",
		FirstOf("application_periods", "end"),
		FirstOf("applicationPeriods", "end"),
	),
}

// Disruption is one traffic disruption notice.
type Disruption struct {
	IngestTS          string
	EventTS           string
	DisruptionID      string
	Cause             *string
	Severity          *string
	Title             *string
	Message           *string
	LastUpdate        *string
	PeriodBegin       *string
	PeriodEnd         *string
	RawDisruptionJSON string
}

var disruptionColumns = []string{
	"ingest_ts", "event_ts", "disruption_id", "cause", "severity", "title",
	"message", "last_update", "period_begin", "period_end", "raw_disruption_json",
}

func (r Disruption) Table() string     { return DisruptionTable }
func (r Disruption) EntityID() string  { return r.DisruptionID }
func (r Disruption) Columns() []string { return disruptionColumns }
func (r Disruption) Raw() string       { return r.RawDisruptionJSON }

func (r Disruption) Values() []any {
	return []any{
		r.IngestTS, r.EventTS, r.DisruptionID, r.Cause, r.Severity, r.Title,
		r.Message, r.LastUpdate, r.PeriodBegin, r.PeriodEnd, r.RawDisruptionJSON,
	}
}

// DisruptionMapper accepts either one disruption object per envelope, as the
// collector publishes them, or a bulk {"disruptions": [...]} document.
func DisruptionMapper() Mapper {
	return entryMapper{
		name:      "idfm_disruptions",
		eventType: DisruptionEventType,
		entries: func(payload any) ([]any, error) {
			if obj, ok := payload.(map[string]any); ok {
				if _, bulk := obj["disruptions"]; !bulk {
					return []any{obj}, nil
				}
			}
			return nestedList(payload, "disruptions")
		},
		build: func(env envelope.Envelope, d map[string]any) (Row, bool) {
			f := disruptionFields
			id := entityID(f.id.Resolve(d))
			if id == "" {
				return nil, false
			}
			return Disruption{
				IngestTS:          env.IngestTS,
				EventTS:           env.EventTS,
				DisruptionID:      id,
				Cause:             ToString(f.cause.Resolve(d)),
				Severity:          ToString(f.severity.Resolve(d)),
				Title:             ToString(f.title.Resolve(d)),
				Message:           ToString(f.message.Resolve(d)),
				LastUpdate:        ToString(f.lastUpdate.Resolve(d)),
				PeriodBegin:       ToString(f.begin.Resolve(d)),
				PeriodEnd:         ToString(f.end.Resolve(d)),
				RawDisruptionJSON: rawJSON(d),
			}, true
		},
	}
}
