package mapping

import "github.com/drblury/pulseflow/internal/envelope"

// Event type and table of the station status feed.
const (
	StationStatusEventType = "station_status_snapshot"
	StationStatusTable     = "station_status"
)

const (
	bikeTypesKey      = "num_bikes_available_types"
	bikeTypesCamelKey = "numBikesAvailableTypes"
)

var stationStatusFields = struct {
	id, code, installed, renting, returning, lastReported Field
	bikes, docks, mechanical, ebike                       Field
}{
	id:           NewField("station_id", Key("station_id"), Key("stationId")),
	code:         NewField("station_code", Key("station_code"), Key("stationCode")),
	installed:    NewField("is_installed", Key("is_installed"), Key("isInstalled")),
	renting:      NewField("is_renting", Key("is_renting"), Key("isRenting")),
	returning:    NewField("is_returning", Key("is_returning"), Key("isReturning")),
	lastReported: NewField("last_reported", Key("last_reported"), Key("lastReported")),
	bikes:        NewField("num_bikes_available", Key("num_bikes_available"), Key("numBikesAvailable")),
	docks:        NewField("num_docks_available", Key("num_docks_available"), Key("numDocksAvailable")),
	mechanical: NewField("mechanical_available",
		TypedCount(bikeTypesKey, "mechanical"),
		TypedCount(bikeTypesCamelKey, "mechanical"),
		PairCount(bikeTypesKey, "bike_type", "count", "mechanical"),
		PairCount(bikeTypesCamelKey, "bike_type", "count", "mechanical"),
	),
	ebike: NewField("ebike_available",
		TypedCount(bikeTypesKey, "ebike"),
		TypedCount(bikeTypesCamelKey, "ebike"),
		PairCount(bikeTypesKey, "bike_type", "count", "ebike"),
		PairCount(bikeTypesCamelKey, "bike_type", "count", "ebike"),
	),
}

// StationStatus is one station of a station status snapshot.
type StationStatus struct {
	IngestTS            string
	EventTS             string
	StationID           string
	StationCode         *string
	IsInstalled         *int64
	IsRenting           *int64
	IsReturning         *int64
	LastReported        *string
	NumBikesAvailable   *int64
	NumDocksAvailable   *int64
	MechanicalAvailable *int64
	EbikeAvailable      *int64
	RawStationJSON      string
}

var stationStatusColumns = []string{
	"ingest_ts", "event_ts", "station_id", "station_code",
	"is_installed", "is_renting", "is_returning", "last_reported",
	"num_bikes_available", "num_docks_available",
	"mechanical_available", "ebike_available", "raw_station_json",
}

func (r StationStatus) Table() string     { return StationStatusTable }
func (r StationStatus) EntityID() string  { return r.StationID }
func (r StationStatus) Columns() []string { return stationStatusColumns }
func (r StationStatus) Raw() string       { return r.RawStationJSON }

func (r StationStatus) Values() []any {
	return []any{
		r.IngestTS, r.EventTS, r.StationID, r.StationCode,
		r.IsInstalled, r.IsRenting, r.IsReturning, r.LastReported,
		r.NumBikesAvailable, r.NumDocksAvailable,
		r.MechanicalAvailable, r.EbikeAvailable, r.RawStationJSON,
	}
}

// StationStatusMapper maps payload.data.stations of station status snapshots.
func StationStatusMapper() Mapper {
	return entryMapper{
		name:      "velib_station_status",
		eventType: StationStatusEventType,
		entries: func(payload any) ([]any, error) {
			return nestedList(payload, "data", "stations")
		},
		build: buildStationStatus,
	}
}

func buildStationStatus(env envelope.Envelope, st map[string]any) (Row, bool) {
	f := stationStatusFields
	id := entityID(f.id.Resolve(st))
	if id == "" {
		return nil, false
	}
	return StationStatus{
		IngestTS:            env.IngestTS,
		EventTS:             env.EventTS,
		StationID:           id,
		StationCode:         ToString(f.code.Resolve(st)),
		IsInstalled:         ToInt(f.installed.Resolve(st)),
		IsRenting:           ToInt(f.renting.Resolve(st)),
		IsReturning:         ToInt(f.returning.Resolve(st)),
		LastReported:        EpochToRFC3339(f.lastReported.Resolve(st)),
		NumBikesAvailable:   ToInt(f.bikes.Resolve(st)),
		NumDocksAvailable:   ToInt(f.docks.Resolve(st)),
		MechanicalAvailable: ToInt(f.mechanical.Resolve(st)),
		EbikeAvailable:      ToInt(f.ebike.Resolve(st)),
		RawStationJSON:      rawJSON(st),
	}, true
}
