package forecast

import (
	"github.com/montanaflynn/stats"

	"github.com/lox/chamberodds/internal/models"
)

// Project scales a national pair by a seat's partisan-lean ratio.
func Project(national models.PartisanPair, ratio models.SeatRatio) models.PartisanPair {
	return models.NewPair(national.Dem*ratio.Dem, national.Rep*ratio.Rep)
}

// ProjectAll projects national onto every seat with a usable ratio.
func ProjectAll(national models.PartisanPair, ratios map[string]models.SeatRatio) map[string]models.PartisanPair {
	out := make(map[string]models.PartisanPair, len(ratios))
	for id, r := range ratios {
		if !r.Valid() {
			continue
		}
		out[id] = Project(national, r)
	}
	return out
}

// Indicator backs an implied national pair out of every seat that has both a
// ratio and a poll, then takes the median of each party's component. The
// second return is false when no seat contributes.
func Indicator(ratios map[string]models.SeatRatio, polls map[string]models.PartisanPair) (models.PartisanPair, bool) {
	var dems, reps []float64
	for id, poll := range polls {
		r, ok := ratios[id]
		if !ok || !r.Valid() {
			continue
		}
		dems = append(dems, poll.Dem/r.Dem)
		reps = append(reps, poll.Rep/r.Rep)
	}
	if len(dems) == 0 {
		return models.NeutralPair(), false
	}

	dem, err := stats.Median(dems)
	if err != nil {
		return models.NeutralPair(), false
	}
	rep, err := stats.Median(reps)
	if err != nil {
		return models.NeutralPair(), false
	}
	return models.NewPair(dem, rep), true
}
