package store

import (
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chamberodds/internal/compact"
	"github.com/lox/chamberodds/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.Migrate())
	return store
}

var asOf = time.Date(2022, 11, 7, 0, 0, 0, 0, time.UTC)

func TestMigrateIdempotent(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Migrate())

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	ok, err := store.StartRun(math.MaxUint64)
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(ok, nil))

	failed, err := store.StartRun(7)
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(failed, errors.New("boom")))

	latest, err = store.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ok.ID, latest.ID, "failed runs are never latest")
	assert.Equal(t, uint64(math.MaxUint64), latest.Seed)
	assert.True(t, latest.FinishedAt.Valid)

	recent, err := store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	var sawError bool
	for _, r := range recent {
		if r.ID == failed.ID {
			sawError = true
			assert.False(t, r.Success)
			assert.Equal(t, "boom", r.ErrorMessage.String)
		}
	}
	assert.True(t, sawError)
}

func TestChamberResultRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.StartRun(1)
	require.NoError(t, err)

	want := models.ChamberResult{
		ChamberID:          "senate",
		AsOf:               asOf,
		ControlProbability: 0.43,
		ExpectedSeats:      49.6,
		TrialCount:         10000,
		PerSeat: map[string]models.SeatResult{
			"AZ": {WinProbability: 0.71, Margin: -3.2},
			"GA": {WinProbability: 0.48, Margin: 0.3},
		},
		Histogram:    models.Histogram{Start: 40, BinWidth: 1, Counts: []int{0, 1, 2}},
		Indicator:    &models.PartisanPair{Dem: 0.51, Rep: 0.49},
		NeutralSeats: 2,
	}
	require.NoError(t, store.SaveChamberResult(run.ID, want))

	got, err := store.GetChamberResult(run.ID, "senate")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// Resaving replaces seats rather than accumulating them.
	want.PerSeat = map[string]models.SeatResult{"NV": {WinProbability: 0.5}}
	want.Indicator = nil
	require.NoError(t, store.SaveChamberResult(run.ID, want))
	got, err = store.GetChamberResult(run.ID, "senate")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	missing, err := store.GetChamberResult(run.ID, "house")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListChamberResults(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.StartRun(1)
	require.NoError(t, err)

	for _, id := range []string{"senate", "governor", "house"} {
		require.NoError(t, store.SaveChamberResult(run.ID, models.ChamberResult{ChamberID: id, AsOf: asOf}))
	}

	results, err := store.ListChamberResults(run.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "governor", results[0].ChamberID)
	assert.Nil(t, results[0].PerSeat)
}

func TestChamberSeriesRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	points := []models.ChamberPoint{
		{Date: asOf.AddDate(0, 0, -1), ControlProbability: 0.4, ExpectedSeats: 49},
		{Date: asOf, ControlProbability: 0.45, ExpectedSeats: 49.5},
	}
	require.NoError(t, store.SaveChamberSeries("run-1", "senate", points))
	require.NoError(t, store.SaveChamberSeries("run-1", "senate", points))

	got, err := store.GetChamberSeries("run-1", "senate")
	require.NoError(t, err)
	assert.Equal(t, points, got)

	empty, err := store.GetChamberSeries("run-1", "house")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCompactSeriesRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	c := compact.Encode(map[string][]models.SeatPoint{
		"AZ": {
			{Date: asOf.AddDate(0, 0, -1), WinProbability: 0.6, Margin: -2},
			{Date: asOf, WinProbability: 0.62, Margin: -2.4},
		},
	})
	require.NoError(t, store.SaveCompactSeries("run-1", "senate", &c))
	require.NoError(t, store.SaveCompactSeries("run-2", "senate", &c))

	got, err := store.GetCompactSeries("run-1", "senate")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Dates, got.Dates)

	seat, err := got.Decode("AZ")
	require.NoError(t, err)
	assert.Len(t, seat, 2)

	missing, err := store.GetCompactSeries("run-1", "house")
	require.NoError(t, err)
	assert.Nil(t, missing)

	stats, err := store.GetCompactStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 1, stats.DistinctHashes)
}

func TestPollFetchAudit(t *testing.T) {
	store := setupTestStore(t)

	none, err := store.LastSuccessfulPollFetch()
	require.NoError(t, err)
	assert.Nil(t, none)

	f, err := store.StartPollFetch(asOf.AddDate(0, 0, -30), asOf)
	require.NoError(t, err)
	require.NoError(t, store.CompletePollFetch(f, 42, nil))

	bad, err := store.StartPollFetch(asOf, asOf)
	require.NoError(t, err)
	require.NoError(t, store.CompletePollFetch(bad, 0, errors.New("status 500")))

	last, err := store.LastSuccessfulPollFetch()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, f.ID, last.ID)
	assert.Equal(t, int64(42), last.PollsFetched.Int64)
	assert.Equal(t, asOf, last.RangeEnd)
}
