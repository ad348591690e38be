package feed

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// Server is the consumer's HTTP surface: the windowed-latest snapshot,
// KPI gauges, and the playback controls the original dashboard exposed as
// widgets.
type Server struct {
	session *Session
	mux     *http.ServeMux
}

// NewServer wires the feed endpoints and the /metrics handler for reg.
func NewServer(session *Session, reg *prometheus.Registry) *Server {
	s := &Server{
		session: session,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("POST /playback", s.handlePlayback)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type snapshotResponse struct {
	WaitingForData       bool            `json:"waiting_for_data"`
	Mode                 string          `json:"mode"`
	Paused               bool            `json:"paused"`
	Cursor               string          `json:"cursor,omitempty"`
	CursorState          string          `json:"cursor_state,omitempty"`
	Facilities           int             `json:"facilities"`
	TotalPowerMW         float64         `json:"total_power_mw"`
	TotalEmissionsTonnes float64         `json:"total_emissions_tonnes"`
	LastUpdate           string          `json:"last_update,omitempty"`
	FuelTechs            []string        `json:"fuel_techs"`
	Records              []models.Record `json:"records"`
}

// handleSnapshot serves the current windowed-latest view, optionally
// restricted by ?fuel= filters.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	view := s.session.View()

	records := view.Records
	if fuels := r.URL.Query()["fuel"]; len(fuels) > 0 {
		allowed := make(map[string]bool, len(fuels))
		for _, f := range fuels {
			allowed[f] = true
		}
		filtered := records[:0:0]
		for _, rec := range records {
			if allowed[rec.FuelTech] {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	resp := snapshotResponse{
		WaitingForData: view.WaitingForData,
		Mode:           "replay",
		Paused:         view.Paused,
		FuelTechs:      fuelTechs(view.Records),
		Records:        records,
	}
	if view.Live {
		resp.Mode = "live"
	}
	if !view.CursorPos.IsZero() {
		resp.Cursor = view.CursorPos.UTC().Format(models.WireTimeFormat)
		resp.CursorState = view.CursorState.String()
	}

	var lastUpdate string
	for _, rec := range records {
		resp.Facilities++
		resp.TotalPowerMW += rec.PowerOrZero()
		resp.TotalEmissionsTonnes += rec.EmissionsOrZero()
		if rec.Timestamp > lastUpdate {
			lastUpdate = rec.Timestamp
		}
	}
	resp.LastUpdate = lastUpdate
	if resp.Records == nil {
		resp.Records = []models.Record{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealthz never reports an error for an empty feed; "waiting for
// data" is the placeholder state, not a failure.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	view := s.session.View()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"waiting_for_data": view.WaitingForData,
	})
}

// handleReset is the manual-reload action.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// handlePlayback accepts ?action=play or ?action=pause.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "play":
		s.session.SetPaused(false)
	case "pause":
		s.session.SetPaused(true)
	default:
		http.Error(w, "action must be play or pause", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func fuelTechs(records []models.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range records {
		if rec.FuelTech != "" && !seen[rec.FuelTech] {
			seen[rec.FuelTech] = true
			out = append(out, rec.FuelTech)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
