package models

import (
	"time"
)

// WireTimeFormat is the timestamp layout used on the wire and in the
// append-only log: ISO-8601 UTC with second precision.
const WireTimeFormat = "2006-01-02T15:04:05Z"

// RawRecord is a loosely-typed record as it arrives from a file or the
// wire, before harmonization. Values may be strings, numbers, or absent.
type RawRecord map[string]interface{}

// Record is the canonical, harmonized view of one facility telemetry event.
// Optional numeric fields are pointers; nil means the source did not carry
// the value. EventTime is the parsed Timestamp; a zero EventTime marks an
// unparseable timestamp and excludes the record from time-ordered
// operations.
type Record struct {
	FacilityID      string    `json:"facility_id"`
	Name            string    `json:"name,omitempty"`
	State           string    `json:"state,omitempty"`
	FuelTech        string    `json:"fuel_tech"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	PowerMW         *float64  `json:"power_mw,omitempty"`
	CO2MassKg       *float64  `json:"co2_kg,omitempty"`
	EmissionsTonnes *float64  `json:"emissions_tonnes,omitempty"`
	Timestamp       string    `json:"timestamp"`
	EventTime       time.Time `json:"-"`
}

// HasEventTime reports whether the record carries a usable event time.
func (r *Record) HasEventTime() bool {
	return !r.EventTime.IsZero()
}

// PowerOrZero returns the power value, treating absence as 0 for
// aggregation.
func (r *Record) PowerOrZero() float64 {
	if r.PowerMW == nil {
		return 0
	}
	return *r.PowerMW
}

// EmissionsOrZero returns the emissions value in tonnes, treating absence
// as 0 for aggregation.
func (r *Record) EmissionsOrZero() float64 {
	if r.EmissionsTonnes == nil {
		return 0
	}
	return *r.EmissionsTonnes
}

// Message is the wire schema: one JSON object per transmitted change event.
type Message struct {
	FacilityID   string  `json:"facility_id"`
	FacilityName string  `json:"facility_name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	PowerMW      float64 `json:"power_mw"`
	CO2Kg        float64 `json:"co2_kg"`
	State        string  `json:"state"`
	FuelTech     string  `json:"fuel_tech"`
	Timestamp    string  `json:"timestamp"`
}

// SourceRow is one validated row of the historical source table.
type SourceRow struct {
	FacilityCode string
	FacilityName string
	Timestamp    string
	EventTime    time.Time
	PowerMW      float64
	CO2Kg        float64
	Region       string
	FuelTech     string
	Lat          float64
	Lon          float64
}

// Float returns a pointer to v; convenience for optional Record fields.
func Float(v float64) *float64 {
	return &v
}
