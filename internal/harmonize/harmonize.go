// Package harmonize normalizes loosely-typed telemetry records into the
// canonical Record shape. Input records arrive with differing field names
// and units depending on the source (historical CSV, wire messages, the
// append-only log); harmonization is where those differences end.
package harmonize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// timestamp layouts accepted in input records, tried in order
var timeLayouts = []string{
	time.RFC3339,
	models.WireTimeFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Harmonize converts one raw record into an admissible canonical Record.
// It is total over arbitrary partial input: a malformed record yields
// ok=false and is dropped, never an error. Field aliasing, numeric
// coercion, and the kg->tonnes conversion all happen here.
func Harmonize(raw models.RawRecord) (models.Record, bool) {
	if raw == nil {
		return models.Record{}, false
	}

	var rec models.Record

	rec.FacilityID = stringField(raw, "facility_id")
	if rec.FacilityID == "" {
		return models.Record{}, false
	}

	rec.Name = stringField(raw, "name", "facility_name")
	rec.State = stringField(raw, "state", "region")
	rec.FuelTech = stringField(raw, "fuel_tech")
	if rec.FuelTech == "" {
		rec.FuelTech = "Unknown"
	}

	lat, latOK := floatField(raw, "latitude", "lat")
	lon, lonOK := floatField(raw, "longitude", "lon")
	if !latOK || !lonOK || !ValidCoords(lat, lon) {
		return models.Record{}, false
	}
	rec.Latitude = lat
	rec.Longitude = lon

	if p, ok := floatField(raw, "power_mw", "power"); ok {
		rec.PowerMW = models.Float(p)
	}

	// CO2 arrives as mass in kilograms; tonnes are always derived, never
	// taken from a kg-named field.
	if t, ok := floatField(raw, "emissions_tonnes"); ok {
		rec.EmissionsTonnes = models.Float(t)
		rec.CO2MassKg = models.Float(t * 1000)
	} else if kg, ok := floatField(raw, "co2_kg", "co2_mass_kg"); ok {
		rec.CO2MassKg = models.Float(kg)
		rec.EmissionsTonnes = models.Float(kg / 1000)
	} else if e, ok := floatField(raw, "emissions"); ok {
		rec.CO2MassKg = models.Float(e)
		rec.EmissionsTonnes = models.Float(e / 1000)
	}

	rec.Timestamp = stringField(raw, "timestamp", "time")
	rec.EventTime = ParseTimestamp(rec.Timestamp)

	return rec, true
}

// ParseTimestamp parses an input timestamp to a UTC instant. The zero
// time is the sentinel for unparseable input.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ValidCoords reports whether a latitude/longitude pair is admissible.
// (0, 0) is treated as the "no location" sentinel, not a real point.
func ValidCoords(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if math.Abs(lat) < 1e-9 && math.Abs(lon) < 1e-9 {
		return false
	}
	return true
}

// stringField returns the first non-empty string value among the keys.
func stringField(raw models.RawRecord, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// floatField returns the first coercible numeric value among the keys.
// Coercion failure means absence, never an error.
func floatField(raw models.RawRecord, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
