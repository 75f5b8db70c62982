package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/chart"
	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/store"
)

// Server is a read-only HTTP view over the latest successful forecast run.
type Server struct {
	store  *store.Store
	port   string
	rules  map[string]models.ChamberRules
	charts *chart.Cache
}

func NewServer(store *store.Store, port string, chambers []models.ChamberRules) *Server {
	rules := make(map[string]models.ChamberRules, len(chambers))
	for _, r := range chambers {
		rules[r.ID] = r
	}
	return &Server{
		store:  store,
		port:   port,
		rules:  rules,
		charts: chart.NewCache(10 * time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/chambers", s.handleAPIChambers)
	mux.HandleFunc("GET /api/chambers/{id}", s.handleAPIChamber)
	mux.HandleFunc("GET /api/chambers/{id}/series", s.handleAPISeries)
	mux.HandleFunc("GET /api/chambers/{id}/seats", s.handleAPISeats)
	mux.HandleFunc("GET /api/chambers/{id}/histogram.png", s.handleHistogram)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	zap.S().Infow("api: listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
