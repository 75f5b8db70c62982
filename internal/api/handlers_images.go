package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/chart"
)

// handleHistogram serves the latest run's seat histogram for a chamber,
// rendering on first request and caching per run.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rules, ok := s.rules[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chamber "+id)
		return
	}

	run := s.latestRun(w)
	if run == nil {
		return
	}

	if data, ok := s.charts.Get(run.ID, id); ok {
		servePNG(w, data)
		return
	}

	result, err := s.store.GetChamberResult(run.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no result for chamber "+id)
		return
	}

	data, err := chart.RenderHistogram(rules, *result)
	if err != nil {
		zap.S().Errorw("api: render histogram", "chamber", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.charts.Set(run.ID, id, data)
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
