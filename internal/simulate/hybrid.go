package simulate

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/metrics"
	"github.com/lox/chamberodds/internal/models"
)

// Hybrid approximates the full simulation for large chambers. The swing range
// is discretized into a grid; at each grid point the seat total is treated as
// a sum of independent Bernoullis with known mean and variance, and each trial
// draws a grid point and then a normal seat total around that point's mean.
// Cost is O(seats*grid + trials) instead of O(seats*trials).
type Hybrid struct {
	Table      *forecast.WinTable
	Trials     int
	Swing      float64
	GridPoints int
	Rand       *rand.Rand
}

type gridPoint struct {
	swing float64
	mean  float64
	sd    float64
}

func (h *Hybrid) grid(margins []float64) []gridPoint {
	n := h.GridPoints
	if n < 2 || h.Swing == 0 {
		n = 1
	}
	points := make([]gridPoint, n)
	for g := range points {
		swing := 0.0
		if n > 1 {
			swing = -h.Swing + 2*h.Swing*float64(g)/float64(n-1)
		}
		var mean, variance float64
		for _, m := range margins {
			p := h.Table.Probability(m + swing)
			mean += p
			variance += p * (1 - p)
		}
		points[g] = gridPoint{swing: swing, mean: mean, sd: math.Sqrt(variance)}
	}
	return points
}

// Run simulates the pool described by margins. Seat totals are rounded half
// away from zero and clamped to [0, len(margins)] before the held seats are
// added.
func (h *Hybrid) Run(rules models.ChamberRules, margins []float64) models.Ensemble {
	start := time.Now()
	points := h.grid(margins)
	t := newTally(rules)
	pool := len(margins)

	for trial := 0; trial < h.Trials; trial++ {
		gp := points[h.Rand.IntN(len(points))]
		x := gp.mean + gp.sd*h.Rand.NormFloat64()
		seats := min(max(int(math.Round(x)), 0), pool)
		t.add(seats + rules.HeldDem)
	}

	metrics.TrialsSimulated.WithLabelValues(rules.ID, string(models.MethodHybrid)).Add(float64(h.Trials))
	metrics.SimulationDuration.WithLabelValues(rules.ID, string(models.MethodHybrid)).Observe(time.Since(start).Seconds())
	return t.ensemble()
}
