package mapping

import "github.com/drblury/pulseflow/internal/envelope"

const (
	StationInformationEventType = "station_information_snapshot"
	StationInformationTable     = "station_information"
)

var stationInformationFields = struct {
	id, code, name, lat, lon, capacity, address, postCode Field
}{
	id:       NewField("station_id", Key("station_id"), Key("stationId")),
	code:     NewField("station_code", Key("station_code"), Key("stationCode")),
	name:     NewField("name", Key("name")),
	lat:      NewField("lat", Key("lat"), Key("latitude")),
	lon:      NewField("lon", Key("lon"), Key("longitude")),
	capacity: NewField("capacity", Key("capacity")),
	address:  NewField("address", Key("address")),
	postCode: NewField("post_code", Key("post_code"), Key("postCode")),
}

// StationInformation is the static description of one station.
type StationInformation struct {
	IngestTS       string
	EventTS        string
	StationID      string
	StationCode    *string
	Name           *string
	Lat            *float64
	Lon            *float64
	Capacity       *int64
	Address        *string
	PostCode       *string
	RawStationJSON string
}

var stationInformationColumns = []string{
	"ingest_ts", "event_ts", "station_id", "station_code", "name",
	"lat", "lon", "capacity", "address", "post_code", "raw_station_json",
}

func (r StationInformation) Table() string     { return StationInformationTable }
func (r StationInformation) EntityID() string  { return r.StationID }
func (r StationInformation) Columns() []string { return stationInformationColumns }
func (r StationInformation) Raw() string       { return r.RawStationJSON }

func (r StationInformation) Values() []any {
	return []any{
		r.IngestTS, r.EventTS, r.StationID, r.StationCode, r.Name,
		r.Lat, r.Lon, r.Capacity, r.Address, r.PostCode, r.RawStationJSON,
	}
}

// StationInformationMapper maps payload.data.stations of station information snapshots.
func StationInformationMapper() Mapper {
	return entryMapper{
		name:      "velib_station_information",
		eventType: StationInformationEventType,
		entries: func(payload any) ([]any, error) {
			return nestedList(payload, "data", "stations")
		},
		build: func(env envelope.Envelope, st map[string]any) (Row, bool) {
			f := stationInformationFields
			id := entityID(f.id.Resolve(st))
			if id == "" {
				return nil, false
			}
			return StationInformation{
				IngestTS:       env.IngestTS,
				EventTS:        env.EventTS,
				StationID:      id,
				StationCode:    ToString(f.code.Resolve(st)),
				Name:           ToString(f.name.Resolve(st)),
				Lat:            ToFloat(f.lat.Resolve(st)),
				Lon:            ToFloat(f.lon.Resolve(st)),
				Capacity:       ToInt(f.capacity.Resolve(st)),
				Address:        ToString(f.address.Resolve(st)),
				PostCode:       ToString(f.postCode.Resolve(st)),
				RawStationJSON: rawJSON(st),
			}, true
		},
	}
}
