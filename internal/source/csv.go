// Package source reads and writes the feed's durable inputs: the
// historical CSV table on the producer side and the JSONL append log on
// the consumer side.
package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/openelectricity/emissionfeed/internal/harmonize"
	"github.com/openelectricity/emissionfeed/internal/models"
)

// requiredColumns must all be present in the historical source table.
var requiredColumns = []string{
	"facility_code", "facility_name", "timestamp",
	"power_mw", "co2_kg", "region", "fuel_tech", "lat", "lon",
}

// LoadTable reads the historical source table, validates its schema,
// drops rows with unparseable timestamps or coordinates, and returns the
// rows sorted by (event_time asc, facility_code asc). That total order is
// a contract: downstream consumers drive the playback cursor off
// monotonic timestamps.
func LoadTable(path string) ([]models.SourceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read source header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("source table missing columns: %s", strings.Join(missing, ", "))
	}

	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read source rows: %w", err)
	}

	rows := make([]models.SourceRow, 0, len(all))
	for _, rec := range all {
		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ts := harmonize.ParseTimestamp(field("timestamp"))
		if ts.IsZero() {
			continue
		}
		lat, latErr := strconv.ParseFloat(field("lat"), 64)
		lon, lonErr := strconv.ParseFloat(field("lon"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		rows = append(rows, models.SourceRow{
			FacilityCode: field("facility_code"),
			FacilityName: field("facility_name"),
			Timestamp:    ts.Format(models.WireTimeFormat),
			EventTime:    ts,
			PowerMW:      parseFloatOrZero(field("power_mw")),
			CO2Kg:        parseFloatOrZero(field("co2_kg")),
			Region:       field("region"),
			FuelTech:     field("fuel_tech"),
			Lat:          lat,
			Lon:          lon,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].EventTime.Equal(rows[j].EventTime) {
			return rows[i].EventTime.Before(rows[j].EventTime)
		}
		return rows[i].FacilityCode < rows[j].FacilityCode
	})
	return rows, nil
}

// TableRawRecords loads the source table as raw records keyed by the wire
// field names, for consumers that fall back to the CSV when no append log
// exists yet.
func TableRawRecords(path string) ([]models.RawRecord, error) {
	rows, err := LoadTable(path)
	if err != nil {
		return nil, err
	}
	raws := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		raws = append(raws, RowRawRecord(row))
	}
	return raws, nil
}

// RowRawRecord converts a source row to the loose bag the harmonizer
// consumes, using the wire schema's field names.
func RowRawRecord(row models.SourceRow) models.RawRecord {
	return models.RawRecord{
		"facility_id":   row.FacilityCode,
		"facility_name": row.FacilityName,
		"latitude":      row.Lat,
		"longitude":     row.Lon,
		"power_mw":      row.PowerMW,
		"co2_kg":        row.CO2Kg,
		"state":         row.Region,
		"fuel_tech":     row.FuelTech,
		"timestamp":     row.Timestamp,
	}
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
