package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/store"
)

type HealthStatus struct {
	Status     string    `json:"status"`
	LatestRun  string    `json:"latest_run,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`

	CompactSeries   int   `json:"compact_series"`
	CompactBytes    int64 `json:"compact_bytes"`
	CompactDistinct int   `json:"compact_distinct"`
}

// ChamberSummary pairs a chamber's configured rules with its latest result.
type ChamberSummary struct {
	models.ChamberRules
	Result *models.ChamberResult `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestRun()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, HealthStatus{Status: "error", Error: err.Error()})
		return
	}

	stats, err := s.store.GetCompactStats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, HealthStatus{Status: "error", Error: err.Error()})
		return
	}

	health := HealthStatus{
		Status:          "ok",
		CompactSeries:   stats.Count,
		CompactBytes:    stats.TotalSizeBytes,
		CompactDistinct: stats.DistinctHashes,
	}
	if run == nil {
		health.Status = "no_runs"
	} else {
		health.LatestRun = run.ID
		health.FinishedAt = run.FinishedAt.Time
	}
	writeJSON(w, http.StatusOK, health)
}

// latestRun writes an error response and returns nil when there is no run to
// serve.
func (s *Server) latestRun(w http.ResponseWriter) *store.ForecastRun {
	run, err := s.store.LatestRun()
	if err != nil {
		zap.S().Errorw("api: latest run", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no completed forecast run")
		return nil
	}
	return run
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentRuns(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type runView struct {
		ID         string    `json:"id"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at,omitzero"`
		Seed       uint64    `json:"seed"`
		Success    bool      `json:"success"`
		Error      string    `json:"error,omitempty"`
	}
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView{
			ID:         run.ID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt.Time,
			Seed:       run.Seed,
			Success:    run.Success,
			Error:      run.ErrorMessage.String,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIChambers(w http.ResponseWriter, r *http.Request) {
	run := s.latestRun(w)
	if run == nil {
		return
	}

	results, err := s.store.ListChamberResults(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]ChamberSummary, 0, len(results))
	for _, res := range results {
		rules, ok := s.rules[res.ChamberID]
		if !ok {
			rules = models.ChamberRules{ID: res.ChamberID}
		}
		out = append(out, ChamberSummary{ChamberRules: rules, Result: &res})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIChamber(w http.ResponseWriter, r *http.Request) {
	run := s.latestRun(w)
	if run == nil {
		return
	}

	id := r.PathValue("id")
	result, err := s.store.GetChamberResult(run.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "unknown chamber "+id)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAPISeries(w http.ResponseWriter, r *http.Request) {
	run := s.latestRun(w)
	if run == nil {
		return
	}

	id := r.PathValue("id")
	points, err := s.store.GetChamberSeries(run.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if points == nil {
		points = []models.ChamberPoint{}
	}
	writeJSON(w, http.StatusOK, models.ChamberSeries{ChamberID: id, Points: points})
}

// handleAPISeats serves the compacted seat series. With ?seat=ID the one seat
// is expanded back to dated points.
func (s *Server) handleAPISeats(w http.ResponseWriter, r *http.Request) {
	run := s.latestRun(w)
	if run == nil {
		return
	}

	id := r.PathValue("id")
	cols, err := s.store.GetCompactSeries(run.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cols == nil {
		writeError(w, http.StatusNotFound, "unknown chamber "+id)
		return
	}

	seat := r.URL.Query().Get("seat")
	if seat == "" {
		writeJSON(w, http.StatusOK, cols)
		return
	}
	points, err := cols.Decode(seat)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, points)
}
