// Package playback replays a finite historical dataset as a growing live
// view: a monotonic logical-time cursor plus the windowed latest-per-
// facility reconciliation behind it. All logic here is pure over the
// dataset; wall-clock pacing belongs to the caller's tick loop.
package playback

import (
	"time"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// State is the cursor's position in its lifecycle.
type State int

const (
	// AtStart - cursor sits at the dataset minimum, nothing revealed yet
	AtStart State = iota

	// Playing - cursor is advancing between the dataset bounds
	Playing

	// AtEnd - cursor reached the dataset maximum; further ticks are no-ops
	AtEnd
)

func (s State) String() string {
	switch s {
	case AtStart:
		return "at_start"
	case Playing:
		return "playing"
	case AtEnd:
		return "at_end"
	default:
		return "unknown"
	}
}

// Cursor is a monotonically non-decreasing logical-time boundary bounded
// by the dataset's event-time range. Each Tick advances it by a fixed
// step of business time, independent of the wall-clock tick rate.
type Cursor struct {
	min   time.Time
	max   time.Time
	pos   time.Time
	step  time.Duration
	state State
}

// NewCursor creates a cursor over the [min, max] event-time range,
// positioned at min in the AtStart state.
func NewCursor(min, max time.Time, step time.Duration) *Cursor {
	if max.Before(min) {
		max = min
	}
	return &Cursor{min: min, max: max, pos: min, step: step, state: AtStart}
}

// Tick advances the cursor by one step, clamped to the dataset maximum.
// Once AtEnd, ticking is a no-op. Returns the new position.
func (c *Cursor) Tick() time.Time {
	if c.state == AtEnd {
		return c.pos
	}

	next := c.pos.Add(c.step)
	if !next.Before(c.max) {
		c.pos = c.max
		c.state = AtEnd
		return c.pos
	}
	c.pos = next
	c.state = Playing
	return c.pos
}

// Position returns the current logical-time boundary.
func (c *Cursor) Position() time.Time {
	return c.pos
}

// State returns the cursor lifecycle state.
func (c *Cursor) State() State {
	return c.state
}

// Bounds returns the cursor's dataset range.
func (c *Cursor) Bounds() (min, max time.Time) {
	return c.min, c.max
}

// Rebound returns a cursor over new dataset bounds, preserving the
// current position clamped into the new range. Used when the dataset
// grows under a running playback; a cursor parked AtEnd resumes Playing
// when the maximum moves past it.
func (c *Cursor) Rebound(min, max time.Time) *Cursor {
	if max.Before(min) {
		max = min
	}
	// a cursor that never started follows the new dataset minimum
	if c.state == AtStart {
		return &Cursor{min: min, max: max, pos: min, step: c.step, state: AtStart}
	}

	pos := c.pos
	if pos.Before(min) {
		pos = min
	}
	if pos.After(max) {
		pos = max
	}
	state := Playing
	if !pos.Before(max) {
		state = AtEnd
	}
	return &Cursor{min: min, max: max, pos: pos, step: c.step, state: state}
}

// DatasetBounds computes the event-time range of a record set, skipping
// records without a usable event time. ok is false when no record
// carries one.
func DatasetBounds(records []models.Record) (min, max time.Time, ok bool) {
	for _, rec := range records {
		if !rec.HasEventTime() {
			continue
		}
		if !ok {
			min, max, ok = rec.EventTime, rec.EventTime, true
			continue
		}
		if rec.EventTime.Before(min) {
			min = rec.EventTime
		}
		if rec.EventTime.After(max) {
			max = rec.EventTime
		}
	}
	return min, max, ok
}
