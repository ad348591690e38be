// Package replay turns a static historical table into a live feed: rows
// are published in strict chronological order, only when the facility's
// observable values changed since the last transmission, paced to avoid
// flooding the bus, and looped indefinitely.
package replay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/models"
	"github.com/openelectricity/emissionfeed/internal/source"
	"github.com/openelectricity/emissionfeed/internal/transport"
)

// progress pulse every N sent messages
const logEvery = 100

type sentValues struct {
	powerMW float64
	co2Kg   float64
}

// Loop is the producer-side replay loop. It owns the last-sent memory
// used for change detection; transmission order and pacing are its hard
// contracts.
type Loop struct {
	csvPath  string
	pub      transport.Publisher
	cfg      config.PublisherConfig
	lastSent map[string]sentValues
}

// New creates a replay loop over the given source table.
func New(csvPath string, pub transport.Publisher, cfg config.PublisherConfig) *Loop {
	return &Loop{
		csvPath:  csvPath,
		pub:      pub,
		cfg:      cfg,
		lastSent: make(map[string]sentValues),
	}
}

// Run validates the source table, then replays it round after round until
// ctx is cancelled. The initial load failing is fatal; a load failure on
// a later round is logged and that round skipped.
func (l *Loop) Run(ctx context.Context) error {
	rows, err := source.LoadTable(l.csvPath)
	if err != nil {
		return err
	}

	round := 0
	for {
		round++
		if rows == nil {
			rows, err = source.LoadTable(l.csvPath)
			if err != nil {
				log.Printf("[publisher] round=%d load error: %v", round, err)
				if !sleepCtx(ctx, l.cfg.RoundSleep) {
					return nil
				}
				continue
			}
		}

		sent := l.runRound(ctx, rows)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[publisher] round=%d sent=%d, sleeping %s", round, sent, l.cfg.RoundSleep)

		if !sleepCtx(ctx, l.cfg.RoundSleep) {
			return nil
		}
		rows = nil // refresh from disk next round
	}
}

// runRound publishes one pass over the table. Rows arrive already sorted
// by (event_time, facility_code); that order is preserved on the wire.
func (l *Loop) runRound(ctx context.Context, rows []models.SourceRow) int {
	sent := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return sent
		}

		cur := sentValues{powerMW: row.PowerMW, co2Kg: row.CO2Kg}
		if prev, ok := l.lastSent[row.FacilityCode]; ok && prev == cur {
			continue
		}

		msg := MessageFromRow(row)
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[publisher] marshal %s: %v", row.FacilityCode, err)
			continue
		}

		if err := l.pub.Publish(ctx, payload); err != nil {
			// Failed sends do not update last-sent memory, so the value
			// is offered again next round.
			log.Printf("[publisher] send %s @ %s: %v", row.FacilityCode, row.Timestamp, err)
			continue
		}

		sent++
		if sent%logEvery == 1 {
			log.Printf("[pub] #%d %s @ %s", sent, msg.FacilityName, msg.Timestamp)
		}
		l.lastSent[row.FacilityCode] = cur

		if !sleepCtx(ctx, l.cfg.RateDelay) {
			return sent
		}
	}
	return sent
}

// MessageFromRow builds the canonical wire message for a source row.
func MessageFromRow(row models.SourceRow) models.Message {
	name := row.FacilityName
	if name == "" {
		name = "Unknown"
	}
	return models.Message{
		FacilityID:   row.FacilityCode,
		FacilityName: name,
		Latitude:     row.Lat,
		Longitude:    row.Lon,
		PowerMW:      row.PowerMW,
		CO2Kg:        row.CO2Kg,
		State:        row.Region,
		FuelTech:     row.FuelTech,
		Timestamp:    row.Timestamp,
	}
}

// sleepCtx sleeps for d or until ctx is cancelled; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
