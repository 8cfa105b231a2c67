package store

// Column describes one column of a managed table.
type Column struct {
	Name       string
	Kind       Kind
	PrimaryKey bool
}

// Table describes a managed table.
type Table struct {
	Name    string
	Columns []Column
}

// Columns shared by every curated table ahead of the mapped ones.
const (
	ColumnInsertID  = "insert_id"
	ColumnMessageID = "message_id"
)

func curatedTable(name string, cols ...Column) Table {
	base := []Column{
		{Name: ColumnInsertID, Kind: KindText, PrimaryKey: true},
		{Name: ColumnMessageID, Kind: KindText},
		{Name: "ingest_ts", Kind: KindText},
		{Name: "event_ts", Kind: KindText},
	}
	return Table{Name: name, Columns: append(base, cols...)}
}

// CuratedTables lists the curated destinations created by EnsureSchema.
func CuratedTables() []Table {
	return []Table{
		curatedTable("events_raw",
			Column{Name: "source", Kind: KindText},
			Column{Name: "event_type", Kind: KindText},
			Column{Name: "key", Kind: KindText},
			Column{Name: "payload", Kind: KindText},
		),
		curatedTable("station_status",
			Column{Name: "station_id", Kind: KindText},
			Column{Name: "station_code", Kind: KindText},
			Column{Name: "is_installed", Kind: KindInt},
			Column{Name: "is_renting", Kind: KindInt},
			Column{Name: "is_returning", Kind: KindInt},
			Column{Name: "last_reported", Kind: KindText},
			Column{Name: "num_bikes_available", Kind: KindInt},
			Column{Name: "num_docks_available", Kind: KindInt},
			Column{Name: "mechanical_available", Kind: KindInt},
			Column{Name: "ebike_available", Kind: KindInt},
			Column{Name: "raw_station_json", Kind: KindText},
		),
		curatedTable("station_information",
			Column{Name: "station_id", Kind: KindText},
			Column{Name: "station_code", Kind: KindText},
			Column{Name: "name", Kind: KindText},
			Column{Name: "lat", Kind: KindFloat},
			Column{Name: "lon", Kind: KindFloat},
			Column{Name: "capacity", Kind: KindInt},
			Column{Name: "address", Kind: KindText},
			Column{Name: "post_code", Kind: KindText},
			Column{Name: "raw_station_json", Kind: KindText},
		),
		curatedTable("disruptions",
			Column{Name: "disruption_id", Kind: KindText},
			Column{Name: "cause", Kind: KindText},
			Column{Name: "severity", Kind: KindText},
			Column{Name: "title", Kind: KindText},
			Column{Name: "message", Kind: KindText},
			Column{Name: "last_update", Kind: KindText},
			Column{Name: "period_begin", Kind: KindText},
			Column{Name: "period_end", Kind: KindText},
			Column{Name: "raw_disruption_json", Kind: KindText},
		),
	}
}

var deadLetterColumns = []Column{
	{Name: "dlq_ts", Kind: KindTimestamp},
	{Name: "stage", Kind: KindText},
	{Name: "error_type", Kind: KindText},
	{Name: "error_message", Kind: KindText},
	{Name: "raw", Kind: KindText},
	{Name: "event_meta", Kind: KindText},
	{Name: "row_json", Kind: KindText},
	{Name: "sink_errors", Kind: KindText},
	{Name: "destination", Kind: KindText},
	{Name: "message_id", Kind: KindText},
}

// DeadLetterTable describes the dead-letter table called name.
func DeadLetterTable(name string) Table {
	return Table{Name: name, Columns: deadLetterColumns}
}
