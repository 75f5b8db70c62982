package compact

import (
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/lox/chamberodds/internal/models"
)

// Tier keeps every Every-th point of a series whose win-probability range is
// below MaxRange.
type Tier struct {
	MaxRange float64 `mapstructure:"max_range" json:"max_range"`
	Every    int     `mapstructure:"every" json:"every"`
}

// Policy is checked flattest tier first; a series matching no tier is kept at
// full resolution.
type Policy struct {
	Tiers []Tier `mapstructure:"tiers" json:"tiers"`
}

func DefaultPolicy() Policy {
	return Policy{Tiers: []Tier{
		{MaxRange: 0.005, Every: 14},
		{MaxRange: 0.02, Every: 7},
		{MaxRange: 0.05, Every: 3},
	}}
}

func (p Policy) every(probRange float64) int {
	tiers := slices.Clone(p.Tiers)
	slices.SortFunc(tiers, func(a, b Tier) int {
		switch {
		case a.MaxRange < b.MaxRange:
			return -1
		case a.MaxRange > b.MaxRange:
			return 1
		}
		return 0
	})
	for _, t := range tiers {
		if probRange < t.MaxRange {
			return max(t.Every, 1)
		}
	}
	return 1
}

func probabilityRange(points []models.SeatPoint) float64 {
	ps := make([]float64, len(points))
	for i, p := range points {
		ps[i] = p.WinProbability
	}
	hi, err := stats.Max(ps)
	if err != nil {
		return 0
	}
	lo, err := stats.Min(ps)
	if err != nil {
		return 0
	}
	return hi - lo
}

// Downsample thins a flat series. The first and last points are always kept
// and the result is never longer than the input.
func Downsample(points []models.SeatPoint, policy Policy) []models.SeatPoint {
	if len(points) <= 2 {
		return slices.Clone(points)
	}
	k := policy.every(probabilityRange(points))
	if k == 1 {
		return slices.Clone(points)
	}

	out := make([]models.SeatPoint, 0, len(points)/k+2)
	last := len(points) - 1
	for i, p := range points {
		if i%k == 0 || i == last {
			out = append(out, p)
		}
	}
	return out
}

func DownsampleAll(series map[string][]models.SeatPoint, policy Policy) map[string][]models.SeatPoint {
	out := make(map[string][]models.SeatPoint, len(series))
	for id, points := range series {
		out[id] = Downsample(points, policy)
	}
	return out
}
