package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chamberodds/internal/models"
)

func chamber(cfg *Config, id string) (models.ChamberRules, bool) {
	for _, r := range cfg.Chambers {
		if r.ID == id {
			return r, true
		}
	}
	return models.ChamberRules{}, false
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Model.Trials)
	assert.Equal(t, 6.0, cfg.Model.Sigma)
	assert.Equal(t, 0.4, cfg.Model.Weights.Generic)
	require.Len(t, cfg.Chambers, 3)
	require.Len(t, cfg.Downsample.Tiers, 3)

	senate, ok := chamber(cfg, "senate")
	require.True(t, ok)
	assert.Equal(t, 35, senate.Contested())
	assert.Equal(t, models.PartyDem, senate.TieWinner)
	assert.Equal(t, models.MethodFull, senate.Method)
	assert.True(t, senate.DemControls(50))
	assert.False(t, senate.DemControls(49))

	house, ok := chamber(cfg, "house")
	require.True(t, ok)
	assert.Equal(t, models.MethodHybrid, house.Method)
	assert.Equal(t, 5, house.Histogram.BinWidth)
	assert.False(t, house.DemControls(217))
	assert.True(t, house.DemControls(218))

	gov, ok := chamber(cfg, "governor")
	require.True(t, ok)
	assert.Equal(t, 36, gov.Contested())
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 1234
model:
  trials: 500
history:
  start: "2022-06-01"
chambers:
  - id: senate
    total_seats: 100
    held_dem: 36
    held_rep: 29
    control_seats: 51
    tie_winner: dem
    method: full
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), cfg.Seed)
	assert.Equal(t, 500, cfg.Model.Trials)
	assert.Equal(t, 6.0, cfg.Model.Sigma)
	assert.Len(t, cfg.Chambers, 1)

	start, end, err := cfg.History.Range()
	require.NoError(t, err)
	assert.Equal(t, 2022, start.Year())
	assert.True(t, end.IsZero())
}

func TestValidateRejectsBadRules(t *testing.T) {
	base := models.ChamberRules{ID: "x", TotalSeats: 10, ControlSeats: 6, Method: models.MethodFull}

	tests := []struct {
		name   string
		mutate func(r *models.ChamberRules)
	}{
		{"no seats", func(r *models.ChamberRules) { r.TotalSeats = 0 }},
		{"control above total", func(r *models.ChamberRules) { r.ControlSeats = 11 }},
		{"missing control", func(r *models.ChamberRules) { r.ControlSeats = 0 }},
		{"all seats held", func(r *models.ChamberRules) { r.HeldDem = 5; r.HeldRep = 5 }},
		{"unknown method", func(r *models.ChamberRules) { r.Method = "guess" }},
		{"missing method", func(r *models.ChamberRules) { r.Method = "" }},
		{"unknown tie winner", func(r *models.ChamberRules) { r.TieWinner = "green" }},
		{"histogram inverted", func(r *models.ChamberRules) { r.Histogram = models.HistogramPolicy{Min: 5, Max: 2} }},
	}
	require.NoError(t, ValidateRules(base))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			assert.Error(t, ValidateRules(r))
		})
	}
}

func TestValidateRejectsBadModel(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Model.Weights.Poll = -1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Model.Trials = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.History = History{Start: "2022-06-01", End: "2022-01-01"}
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Chambers = append([]models.ChamberRules{}, cfg.Chambers[0], cfg.Chambers[0])
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Chambers = nil
	assert.Error(t, bad.Validate())
}
