// Package feed is the consumer: it owns the session state the tick loop
// mutates (dataset, cursor, current view), and serves the resulting
// windowed-latest snapshot over HTTP.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/harmonize"
	"github.com/openelectricity/emissionfeed/internal/models"
	"github.com/openelectricity/emissionfeed/internal/playback"
	"github.com/openelectricity/emissionfeed/internal/source"
	"github.com/openelectricity/emissionfeed/internal/store"
)

// RecordSink receives every admissible live-mode record. Satisfied by the
// influxdb client.
type RecordSink interface {
	WriteRecord(models.Record)
}

// Session is the one context object the tick loop mutates: the loaded
// dataset, the playback cursor, the current windowed-latest view, and the
// reload change token. Each Tick is a complete unit of work; the loop
// stops by not being re-invoked.
type Session struct {
	playbackCfg config.PlaybackConfig
	dataCfg     config.DataConfig

	liveStore *store.Store // live mode only
	sink      RecordSink   // optional, live mode
	metrics   *Metrics     // optional

	mu      sync.Mutex
	dataset []models.Record
	cursor  *playback.Cursor
	token   int64
	paused  bool
	view    []models.Record
}

// NewSession creates a replay-mode session reading from the JSONL log
// with CSV fallback.
func NewSession(playbackCfg config.PlaybackConfig, dataCfg config.DataConfig, metrics *Metrics) *Session {
	s := &Session{
		playbackCfg: playbackCfg,
		dataCfg:     dataCfg,
		metrics:     metrics,
		token:       -1,
	}
	if playbackCfg.LiveMode {
		s.liveStore = store.New()
	}
	return s
}

// SetSink attaches an optional per-record sink for live-mode ingestion.
func (s *Session) SetSink(sink RecordSink) {
	s.sink = sink
}

// Run executes the cooperative tick loop: one tick, sleep, repeat, until
// ctx is cancelled. The sleep is the only suspension point.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.playbackCfg.TickInterval)
	defer ticker.Stop()

	s.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one complete unit of consumer work: check for new data,
// reload if changed, advance the cursor, recompute the window.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playbackCfg.LiveMode {
		// The store already is the latest view; just refresh the copy.
		s.view = s.liveStore.Snapshot()
		s.publishMetricsLocked()
		return
	}

	if !s.paused {
		s.reloadIfChangedLocked()
		s.advanceLocked()
	}
	s.recomputeViewLocked()
	s.publishMetricsLocked()
}

// reloadIfChangedLocked reloads the dataset when the data file's change
// token moved. Load failures leave the previous dataset in place.
func (s *Session) reloadIfChangedLocked() {
	token := source.ChangeToken(s.dataCfg.JSONLPath, s.dataCfg.CSVPath)
	if token == s.token {
		return
	}

	raws, err := s.loadRaw()
	if err != nil {
		log.Printf("[feedview] reload: %v", err)
		return
	}

	dataset := make([]models.Record, 0, len(raws))
	for _, raw := range raws {
		if rec, ok := harmonize.Harmonize(raw); ok {
			dataset = append(dataset, rec)
		}
	}
	s.dataset = dataset
	s.token = token

	min, max, ok := playback.DatasetBounds(dataset)
	if !ok {
		s.cursor = nil
		return
	}
	if s.cursor == nil {
		s.cursor = playback.NewCursor(min, max, s.playbackCfg.Step)
	} else {
		s.cursor = s.cursor.Rebound(min, max)
	}
}

// loadRaw prefers the append log and falls back to the CSV table.
func (s *Session) loadRaw() ([]models.RawRecord, error) {
	if source.ChangeToken(s.dataCfg.JSONLPath) != 0 {
		return source.ReadRecords(s.dataCfg.JSONLPath)
	}
	if source.ChangeToken(s.dataCfg.CSVPath) != 0 {
		return source.TableRawRecords(s.dataCfg.CSVPath)
	}
	return nil, nil
}

func (s *Session) advanceLocked() {
	if s.cursor != nil {
		s.cursor.Tick()
	}
}

func (s *Session) recomputeViewLocked() {
	if s.cursor == nil {
		s.view = nil
		return
	}
	s.view = playback.WindowLatest(s.dataset, s.cursor.Position())
}

func (s *Session) publishMetricsLocked() {
	if s.metrics == nil {
		return
	}
	var power, emissions float64
	if s.liveStore != nil {
		power, emissions = s.liveStore.Totals()
	} else {
		for i := range s.view {
			power += s.view[i].PowerOrZero()
			emissions += s.view[i].EmissionsOrZero()
		}
	}
	cursorUnix := float64(0)
	if s.cursor != nil {
		cursorUnix = float64(s.cursor.Position().Unix())
	}
	s.metrics.Publish(len(s.view), power, emissions, cursorUnix)
}

// IngestPayload harmonizes one pushed wire payload into the live store.
// Non-object payloads and inadmissible records are dropped. Intended as a
// transport.Handler.
func (s *Session) IngestPayload(payload []byte) {
	if s.liveStore == nil {
		return
	}
	var raw models.RawRecord
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		log.Printf("[feedview] ignored non-object payload (%d bytes)", len(payload))
		return
	}

	rec, ok := harmonize.Harmonize(raw)
	if !ok {
		return
	}
	if s.liveStore.Upsert(rec) && s.sink != nil {
		s.sink.WriteRecord(rec)
	}
}

// SetPaused freezes or resumes ticking. Pausing changes no state.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Reset is the manual-reload action: clears the dataset, the cursor, and
// any file-mode derived state, forcing a reload on the next tick.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = nil
	s.cursor = nil
	s.view = nil
	s.token = -1
	if s.liveStore != nil {
		s.liveStore.Reset()
	}
}

// View describes the current consumer-visible state.
type View struct {
	WaitingForData bool
	Live           bool
	Paused         bool
	CursorPos      time.Time
	CursorState    playback.State
	Records        []models.Record
}

// View returns an independent copy of the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		WaitingForData: len(s.view) == 0,
		Live:           s.playbackCfg.LiveMode,
		Paused:         s.paused,
		Records:        append([]models.Record(nil), s.view...),
	}
	if s.cursor != nil {
		v.CursorPos = s.cursor.Position()
		v.CursorState = s.cursor.State()
	}
	return v
}
