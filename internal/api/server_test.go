package api_test

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/chamberodds/internal/api"
	"github.com/lox/chamberodds/internal/compact"
	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/store"
)

var (
	day    = time.Date(2022, 11, 7, 0, 0, 0, 0, time.UTC)
	senate = models.ChamberRules{ID: "senate", Name: "Senate", TotalSeats: 100, HeldDem: 36, HeldRep: 29, ControlSeats: 51, TieWinner: models.PartyDem, Method: models.MethodFull}
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

func seedRun(t *testing.T, s *store.Store) string {
	t.Helper()
	run, err := s.StartRun(99)
	require.NoError(t, err)

	require.NoError(t, s.SaveChamberResult(run.ID, models.ChamberResult{
		ChamberID:          "senate",
		AsOf:               day,
		ControlProbability: 0.47,
		ExpectedSeats:      50.2,
		TrialCount:         1000,
		PerSeat:            map[string]models.SeatResult{"AZ": {WinProbability: 0.6, Margin: -1.5}},
		Histogram:          models.Histogram{Start: 40, BinWidth: 1, Counts: []int{10, 200, 400, 300, 90}},
	}))
	require.NoError(t, s.SaveChamberSeries(run.ID, "senate", []models.ChamberPoint{
		{Date: day.AddDate(0, 0, -1), ControlProbability: 0.45, ExpectedSeats: 50},
		{Date: day, ControlProbability: 0.47, ExpectedSeats: 50.2},
	}))
	cols := compact.Encode(map[string][]models.SeatPoint{
		"AZ": {{Date: day, WinProbability: 0.6, Margin: -1.5}},
	})
	require.NoError(t, s.SaveCompactSeries(run.ID, "senate", &cols))
	require.NoError(t, s.CompleteRun(run, nil))
	return run.ID
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	srv := api.NewServer(s, "8080", []models.ChamberRules{senate})

	w := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var health api.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "no_runs", health.Status)
	assert.Zero(t, health.CompactSeries)

	runID := seedRun(t, s)
	w = get(t, srv, "/health")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, runID, health.LatestRun)
	assert.Equal(t, 1, health.CompactSeries)
	assert.Equal(t, 1, health.CompactDistinct)
	assert.Positive(t, health.CompactBytes)
}

func TestChamberEndpointsWithoutRun(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(setupTestStore(t), "8080", []models.ChamberRules{senate})

	for _, path := range []string{"/api/chambers", "/api/chambers/senate", "/api/chambers/senate/series", "/api/chambers/senate/histogram.png"} {
		w := get(t, srv, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestChamberEndpoints(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedRun(t, s)
	srv := api.NewServer(s, "8080", []models.ChamberRules{senate})

	t.Run("list", func(t *testing.T) {
		w := get(t, srv, "/api/chambers")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var got []api.ChamberSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "Senate", got[0].Name)
		require.NotNil(t, got[0].Result)
		assert.Equal(t, 0.47, got[0].Result.ControlProbability)
	})

	t.Run("detail", func(t *testing.T) {
		w := get(t, srv, "/api/chambers/senate")
		require.Equal(t, http.StatusOK, w.Code)
		var got models.ChamberResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 0.6, got.PerSeat["AZ"].WinProbability)

		assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/chambers/house").Code)
	})

	t.Run("series", func(t *testing.T) {
		w := get(t, srv, "/api/chambers/senate/series")
		require.Equal(t, http.StatusOK, w.Code)
		var got models.ChamberSeries
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got.Points, 2)
	})

	t.Run("seats", func(t *testing.T) {
		w := get(t, srv, "/api/chambers/senate/seats")
		require.Equal(t, http.StatusOK, w.Code)
		var cols compact.Columnar
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cols))
		assert.Equal(t, []string{"2022-11-07"}, cols.Dates)

		w = get(t, srv, "/api/chambers/senate/seats?seat=AZ")
		require.Equal(t, http.StatusOK, w.Code)
		var points []models.SeatPoint
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
		require.Len(t, points, 1)
		assert.Equal(t, -1.5, points[0].Margin)

		assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/chambers/senate/seats?seat=NV").Code)
	})

	t.Run("histogram", func(t *testing.T) {
		w := get(t, srv, "/api/chambers/senate/histogram.png")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Greater(t, w.Body.Len(), 100)

		assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/chambers/house/histogram.png").Code)
	})

	t.Run("runs", func(t *testing.T) {
		w := get(t, srv, "/api/runs")
		require.Equal(t, http.StatusOK, w.Code)
		var runs []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, true, runs[0]["success"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(setupTestStore(t), "8080", nil)
	w := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
