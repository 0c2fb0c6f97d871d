package feed

import (
	"encoding/json"
	"strconv"
)

// FeedResponse is the decoded body of one receiver poll.
type FeedResponse struct {
	Now      float64       `json:"now"`
	Messages int64         `json:"messages"`
	Aircraft []Observation `json:"aircraft"`
}

// Observation is the per-aircraft record of a feed snapshot. Every field
// except the hex address is optional; receivers omit whatever they cannot
// decode, so absent keys stay nil. Unknown keys are ignored.
type Observation struct {
	Hex               string    `json:"hex"`
	PositionSource    *string   `json:"type,omitempty"`
	Flight            *string   `json:"flight,omitempty"`
	Registration      *string   `json:"r,omitempty"`
	TypeCode          *string   `json:"t,omitempty"`
	Description       *string   `json:"desc,omitempty"`
	Category          *string   `json:"category,omitempty"`
	AltBaro           *Altitude `json:"alt_baro,omitempty"`
	AltGeom           *float64  `json:"alt_geom,omitempty"`
	GroundSpeed       *float64  `json:"gs,omitempty"`
	IndicatedAirspeed *float64  `json:"ias,omitempty"`
	TrueAirspeed      *float64  `json:"tas,omitempty"`
	Mach              *float64  `json:"mach,omitempty"`
	Track             *float64  `json:"track,omitempty"`
	TrackRate         *float64  `json:"track_rate,omitempty"`
	Roll              *float64  `json:"roll,omitempty"`
	MagHeading        *float64  `json:"mag_heading,omitempty"`
	TrueHeading       *float64  `json:"true_heading,omitempty"`
	BaroRate          *float64  `json:"baro_rate,omitempty"`
	GeomRate          *float64  `json:"geom_rate,omitempty"`
	Squawk            *string   `json:"squawk,omitempty"`
	Emergency         *string   `json:"emergency,omitempty"`
	NavQNH            *float64  `json:"nav_qnh,omitempty"`
	NavAltitudeMCP    *float64  `json:"nav_altitude_mcp,omitempty"`
	NavAltitudeFMS    *float64  `json:"nav_altitude_fms,omitempty"`
	NavHeading        *float64  `json:"nav_heading,omitempty"`
	Lat               *float64  `json:"lat,omitempty"`
	Lon               *float64  `json:"lon,omitempty"`
	Nic               *float64  `json:"nic,omitempty"`
	RadiusOfCont      *float64  `json:"rc,omitempty"`
	SeenPos           *float64  `json:"seen_pos,omitempty"`
	Version           *float64  `json:"version,omitempty"`
	NicBaro           *float64  `json:"nic_baro,omitempty"`
	NacP              *float64  `json:"nac_p,omitempty"`
	NacV              *float64  `json:"nac_v,omitempty"`
	Sil               *float64  `json:"sil,omitempty"`
	SilType           *string   `json:"sil_type,omitempty"`
	Gva               *float64  `json:"gva,omitempty"`
	Sda               *float64  `json:"sda,omitempty"`
	Alert             *Flag     `json:"alert,omitempty"`
	Spi               *Flag     `json:"spi,omitempty"`
	WindDirection     *float64  `json:"wd,omitempty"`
	WindSpeed         *float64  `json:"ws,omitempty"`
	OutsideAirTemp    *float64  `json:"oat,omitempty"`
	TotalAirTemp      *float64  `json:"tat,omitempty"`
	Messages          *float64  `json:"messages,omitempty"`
	Seen              *float64  `json:"seen,omitempty"`
	Rssi              *float64  `json:"rssi,omitempty"`
	Distance          *float64  `json:"dst,omitempty"`
	Bearing           *float64  `json:"dir,omitempty"`
	DBFlags           *float64  `json:"dbFlags,omitempty"`
}

// Altitude is a barometric altitude value, which the feed reports either as a
// number of feet or as a string, usually the literal "ground".
type Altitude struct {
	Feet   float64
	Ground bool
	text   string
}

// UnmarshalJSON accepts both encodings.
func (a *Altitude) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.text = s
		a.Ground = s == "ground"
		return nil
	}
	return json.Unmarshal(b, &a.Feet)
}

// MarshalJSON restores the feed encoding.
func (a Altitude) MarshalJSON() ([]byte, error) {
	if a.text != "" {
		return json.Marshal(a.text)
	}
	return json.Marshal(a.Feet)
}

// String renders the altitude the way the feed spelled it, which keeps
// fingerprints of on-ground aircraft stable.
func (a Altitude) String() string {
	if a.text != "" {
		return a.text
	}
	return strconv.FormatFloat(a.Feet, 'f', -1, 64)
}

// Value returns the altitude in feet, or nil for aircraft on the ground or
// non numeric readings.
func (a *Altitude) Value() *float64 {
	if a == nil || a.text != "" {
		return nil
	}
	return &a.Feet
}

// Flag is a boolean the feed reports either as a JSON bool or as 0/1.
type Flag bool

// UnmarshalJSON accepts both encodings. Any numeric value other than 1 is
// treated as false.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = true
	case "false":
		*f = false
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = n == 1
	}
	return nil
}

// Bool unwraps the flag with absent values reading as false.
func (f *Flag) Bool() bool {
	return f != nil && bool(*f)
}
