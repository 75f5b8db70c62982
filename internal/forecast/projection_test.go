package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chamberodds/internal/models"
)

func TestNewPair(t *testing.T) {
	tests := []struct {
		name     string
		dem, rep float64
		want     models.PartisanPair
	}{
		{"already normalized", 45, 55, models.PartisanPair{Dem: 45, Rep: 55}},
		{"rescaled", 30, 10, models.PartisanPair{Dem: 75, Rep: 25}},
		{"zero total", 0, 0, models.NeutralPair()},
		{"negative total", -3, -2, models.NeutralPair()},
		{"negative component", -1, 5, models.NeutralPair()},
		{"nan", math.NaN(), 4, models.NeutralPair()},
		{"infinite", math.Inf(1), 4, models.NeutralPair()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := models.NewPair(tt.dem, tt.rep)
			assert.InDelta(t, tt.want.Dem, got.Dem, 1e-9)
			assert.InDelta(t, tt.want.Rep, got.Rep, 1e-9)
			assert.InDelta(t, 100, got.Dem+got.Rep, 1e-9)
		})
	}
}

func TestProject(t *testing.T) {
	national := models.PartisanPair{Dem: 48, Rep: 52}

	got := Project(national, models.SeatRatio{Dem: 1, Rep: 1})
	assert.InDelta(t, 48, got.Dem, 1e-9)

	got = Project(national, models.SeatRatio{Dem: 1.5, Rep: 0.5})
	assert.InDelta(t, 72.0/(72+26)*100, got.Dem, 1e-9)
	assert.InDelta(t, 100, got.Dem+got.Rep, 1e-9)
}

func TestProjectAllSkipsInvalidRatios(t *testing.T) {
	got := ProjectAll(models.NeutralPair(), map[string]models.SeatRatio{
		"AZ": {Dem: 1, Rep: 1.2},
		"XX": {Dem: 0, Rep: 1},
	})
	assert.Len(t, got, 1)
	assert.Contains(t, got, "AZ")
}

func TestIndicatorUsesMedian(t *testing.T) {
	ratios := map[string]models.SeatRatio{
		"A": {Dem: 1, Rep: 1},
		"B": {Dem: 1, Rep: 1},
		"C": {Dem: 1, Rep: 1},
		"D": {Dem: 2, Rep: 2},
	}
	polls := map[string]models.PartisanPair{
		"A": {Dem: 48, Rep: 52},
		"B": {Dem: 49, Rep: 51},
		"C": {Dem: 90, Rep: 10}, // outlier
		"E": {Dem: 10, Rep: 90}, // no ratio
	}

	got, ok := Indicator(ratios, polls)
	require.True(t, ok)
	assert.InDelta(t, 49, got.Dem, 1e-9)
	assert.InDelta(t, 51, got.Rep, 1e-9)
}

func TestIndicatorAbsent(t *testing.T) {
	_, ok := Indicator(map[string]models.SeatRatio{"A": {Dem: 1, Rep: 1}}, nil)
	assert.False(t, ok)
}

func TestModelBuild(t *testing.T) {
	table := NewWinTable(6)
	m := Model{Table: table, Weights: Weights{Generic: 1, Poll: 1, Indicator: 0}}
	national := models.PartisanPair{Dem: 50, Rep: 50}

	got := m.Build(Snapshot{
		SeatIDs: []string{"polled", "generic-only", "nothing", "bad-ratio"},
		Ratios: map[string]models.SeatRatio{
			"polled":       {Dem: 1, Rep: 1},
			"generic-only": {Dem: 0.9, Rep: 1.1},
			"bad-ratio":    {Dem: 0, Rep: 1},
		},
		Polls: map[string]models.PartisanPair{
			"polled": {Dem: 40, Rep: 60},
		},
		National: &national,
	})

	require.Len(t, got.Seats, 4)
	assert.Equal(t, 2, got.Neutral)
	require.NotNil(t, got.Indicator)

	polled := got.Seats[0]
	assert.True(t, polled.HasPoll)
	assert.True(t, polled.HasGeneric)
	assert.InDelta(t, 10, polled.Margin, 1e-9) // mean of 50/50 and 40/60
	assert.Equal(t, table.Probability(10), polled.WinProbability)

	genericOnly := got.Seats[1]
	assert.False(t, genericOnly.HasPoll)
	assert.InDelta(t, 10, genericOnly.Margin, 1e-9)

	nothing := got.Seats[2]
	assert.Equal(t, 0.0, nothing.Margin)
	assert.Equal(t, 0.5, nothing.WinProbability)
	assert.Equal(t, models.NeutralPair(), nothing.Pair)

	badRatio := got.Seats[3]
	assert.False(t, badRatio.HasGeneric, "invalid ratios get no national projection")
	assert.Equal(t, 0.5, badRatio.WinProbability)

	margins := got.Margins()
	assert.Equal(t, "nothing", margins[2].SeatID)
}
