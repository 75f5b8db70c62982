package simulate

import (
	"math/rand/v2"
	"time"

	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/metrics"
	"github.com/lox/chamberodds/internal/models"
)

// Simulator draws correlated seat outcomes for a chamber. Every trial shares
// one uniform swing across all seats, then draws each seat independently at
// its swing-adjusted win probability.
type Simulator struct {
	Table  *forecast.WinTable
	Trials int
	Swing  float64
	Rand   *rand.Rand
}

// NewRand returns a PCG source for seed. Seed 0 picks one from the clock.
func NewRand(seed uint64, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, stream))
}

func (s *Simulator) drawSwing() float64 {
	if s.Swing == 0 {
		return 0
	}
	return (2*s.Rand.Float64() - 1) * s.Swing
}

// Run simulates Trials elections and tallies seat totals including held seats.
func (s *Simulator) Run(rules models.ChamberRules, seats []models.SeatMargin) models.Ensemble {
	start := time.Now()
	t := newTally(rules)
	wins := make([]int, len(seats))

	for trial := 0; trial < s.Trials; trial++ {
		swing := s.drawSwing()
		won := 0
		for i, seat := range seats {
			if s.Rand.Float64() < s.Table.Probability(seat.Margin+swing) {
				wins[i]++
				won++
			}
		}
		t.add(won + rules.HeldDem)
	}

	e := t.ensemble()
	e.SeatWinFrequency = make(map[string]float64, len(seats))
	for i, seat := range seats {
		if s.Trials > 0 {
			e.SeatWinFrequency[seat.SeatID] = float64(wins[i]) / float64(s.Trials)
		}
	}

	metrics.TrialsSimulated.WithLabelValues(rules.ID, string(models.MethodFull)).Add(float64(s.Trials))
	metrics.SimulationDuration.WithLabelValues(rules.ID, string(models.MethodFull)).Observe(time.Since(start).Seconds())
	return e
}
