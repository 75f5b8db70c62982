package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	tableMaxMargin = 40.0
	tableStep      = 0.1
)

// WinTable maps a margin (Rep minus Dem, in points) to the Democratic win
// probability under a normal polling error with standard deviation sigma.
// It is built once and only read afterwards.
type WinTable struct {
	sigma  float64
	half   int
	values []float64
}

// NewWinTable precomputes probabilities from -40 to +40 points in 0.1 steps.
func NewWinTable(sigma float64) *WinTable {
	half := int(math.Round(tableMaxMargin / tableStep))
	t := &WinTable{
		sigma:  sigma,
		half:   half,
		values: make([]float64, 2*half+1),
	}
	for i := range t.values {
		t.values[i] = t.Exact(float64(i-half) * tableStep)
	}
	return t
}

// Probability is the nearest-bucket table lookup. Out-of-range margins clamp
// to the end buckets and non-finite margins return 0.5.
func (t *WinTable) Probability(margin float64) float64 {
	if math.IsNaN(margin) || math.IsInf(margin, 0) {
		return 0.5
	}
	if margin <= -tableMaxMargin {
		return t.values[0]
	}
	if margin >= tableMaxMargin {
		return t.values[len(t.values)-1]
	}
	idx := int(math.Round(margin/tableStep)) + t.half
	return t.values[min(max(idx, 0), len(t.values)-1)]
}

// Exact evaluates the normal CDF without the table.
func (t *WinTable) Exact(margin float64) float64 {
	if math.IsNaN(margin) || math.IsInf(margin, 0) {
		return 0.5
	}
	if margin == 0 {
		return 0.5
	}
	return distuv.UnitNormal.CDF(-margin / t.sigma)
}
