package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/chamberodds/internal/config"
	"github.com/lox/chamberodds/internal/ingest"
	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/store"
)

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		ingest.RatiosFile: `chamber,seat,dem,rep
small,A,1.1,0.9
small,B,0.95,1.05
wide,W1,1,1
wide,W2,0.5,1.5
`,
		ingest.PollsFile: `chamber,seat,date,pollster,dem,rep,uncertainty
small,A,2022-06-03,Alpha,52,44,
small,C,2022-06-05,Beta,45,50,4
`,
		ingest.NationalFile: `date,dem,rep
2022-06-01,47,45
2022-06-04,46,46
2022-06-10,45,47
`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Seed = 42
	cfg.Model.Trials = 300
	cfg.Model.GridPoints = 5
	cfg.Model.CheckpointDays = 3
	cfg.Chambers = []models.ChamberRules{
		{ID: "small", TotalSeats: 7, HeldDem: 2, HeldRep: 1, ControlSeats: 4, TieWinner: models.PartyDem, Method: models.MethodFull},
		{ID: "wide", TotalSeats: 12, HeldDem: 3, HeldRep: 3, ControlSeats: 7, Method: models.MethodHybrid, Histogram: models.HistogramPolicy{BinWidth: 2}},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

var asOf = time.Date(2022, 6, 10, 15, 0, 0, 0, time.UTC)

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	outDir := filepath.Join(t.TempDir(), "out")

	report, err := New(cfg, nil).Run(context.Background(), Options{DataDir: writeData(t), OutDir: outDir, AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, report.Chambers, 2)
	assert.Equal(t, uint64(42), report.Seed)
	assert.Empty(t, report.RunID)

	small := report.Chambers[0]
	assert.Equal(t, "small", small.Result.ChamberID)
	assert.Equal(t, time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC), small.Result.AsOf)
	assert.Equal(t, 300, small.Result.TrialCount)
	assert.Len(t, small.Result.PerSeat, 4, "three known seats plus one placeholder")
	assert.Equal(t, 1, small.Result.NeutralSeats)
	assert.InDelta(t, 0.5, small.Result.PerSeat["small-unassigned-01"].WinProbability, 0.15)
	assert.Len(t, small.Series, 10)
	require.NotEmpty(t, small.Seats.Dates)
	assert.Equal(t, "2022-06-01", small.Seats.Dates[0])
	assert.Equal(t, "2022-06-10", small.Seats.Dates[len(small.Seats.Dates)-1])

	wide := report.Chambers[1]
	assert.Len(t, wide.Series, 10)
	assert.Equal(t, 2, wide.Result.Histogram.BinWidth)
	assert.LessOrEqual(t, wide.Tracked, 6)

	for _, name := range []string{"small.json", "wide.json", "summary.json"} {
		raw, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.True(t, json.Valid(raw), name)
	}
}

func TestRunIsReproducible(t *testing.T) {
	cfg := testConfig(t)
	data := writeData(t)

	first, err := New(cfg, nil).Run(context.Background(), Options{DataDir: data, AsOf: asOf})
	require.NoError(t, err)
	second, err := New(cfg, nil).Run(context.Background(), Options{DataDir: data, AsOf: asOf})
	require.NoError(t, err)

	assert.Equal(t, first.Chambers, second.Chambers)
}

func TestRunPersists(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	require.NoError(t, st.Migrate())

	report, err := New(testConfig(t), st).Run(context.Background(), Options{DataDir: writeData(t), AsOf: asOf})
	require.NoError(t, err)

	run, err := st.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, report.RunID, run.ID)
	assert.Equal(t, uint64(42), run.Seed)

	result, err := st.GetChamberResult(run.ID, "small")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, report.Chambers[0].Result.ControlProbability, result.ControlProbability)

	series, err := st.GetChamberSeries(run.ID, "wide")
	require.NoError(t, err)
	assert.Len(t, series, 10)

	seats, err := st.GetCompactSeries(run.ID, "small")
	require.NoError(t, err)
	require.NotNil(t, seats)
	assert.Equal(t, report.Chambers[0].Seats.Dates, seats.Dates)
}

func TestRunRecordsFailure(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	require.NoError(t, st.Migrate())

	cfg := testConfig(t)
	// Three known seats in "small" against two contested.
	cfg.Chambers[0].HeldRep = 3
	data := writeData(t)

	_, err = New(cfg, st).Run(context.Background(), Options{DataDir: data, AsOf: asOf})
	require.Error(t, err)

	latest, err := st.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	runs, err := st.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
	assert.Contains(t, runs[0].ErrorMessage.String, "contested")
}
