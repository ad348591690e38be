package playback

import (
	"sort"
	"time"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// WindowLatest derives "latest record per facility as of cursor" from a
// full historical record set. Records with event_time after the cursor or
// without a usable event time are excluded; an empty window yields an
// empty result (nothing is shown before the first instant).
//
// Ties on equal event_time within a facility go to the record appearing
// later in arrival order. That last-write-wins rule is a contract relied
// on by tests, not an accident of sorting.
func WindowLatest(records []models.Record, cursor time.Time) []models.Record {
	latest := make(map[string]models.Record)

	for _, rec := range records {
		if rec.FacilityID == "" || !rec.HasEventTime() {
			continue
		}
		if rec.EventTime.After(cursor) {
			continue
		}
		existing, ok := latest[rec.FacilityID]
		if ok && rec.EventTime.Before(existing.EventTime) {
			continue
		}
		latest[rec.FacilityID] = rec
	}

	out := make([]models.Record, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FacilityID < out[j].FacilityID
	})
	return out
}
