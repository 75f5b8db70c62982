package simulate

import "github.com/lox/chamberodds/internal/models"

// newHistogram lays out the bins for a chamber. A bin width above one gives
// fixed-width bins from zero to the chamber size; otherwise there is one bin
// per seat count over the display range. Totals outside the range are
// clamped into the end bins so the counts always sum to the trial count.
func newHistogram(rules models.ChamberRules) models.Histogram {
	policy := rules.Histogram
	if policy.BinWidth > 1 {
		return models.Histogram{
			Start:    0,
			BinWidth: policy.BinWidth,
			Counts:   make([]int, rules.TotalSeats/policy.BinWidth+1),
		}
	}

	lo, hi := policy.Min, policy.Max
	if hi <= lo {
		lo, hi = 0, rules.TotalSeats
	}
	return models.Histogram{
		Start:    lo,
		BinWidth: 1,
		Counts:   make([]int, hi-lo+1),
	}
}

func addToHistogram(h *models.Histogram, seats int) {
	idx := (seats - h.Start) / h.BinWidth
	if seats < h.Start {
		idx = 0
	}
	idx = min(max(idx, 0), len(h.Counts)-1)
	h.Counts[idx]++
}

// tally aggregates trial totals into an ensemble.
type tally struct {
	rules    models.ChamberRules
	trials   int
	controls int
	seatSum  int
	hist     models.Histogram
}

func newTally(rules models.ChamberRules) *tally {
	return &tally{rules: rules, hist: newHistogram(rules)}
}

func (t *tally) add(total int) {
	t.trials++
	t.seatSum += total
	if t.rules.DemControls(total) {
		t.controls++
	}
	addToHistogram(&t.hist, total)
}

func (t *tally) ensemble() models.Ensemble {
	e := models.Ensemble{Trials: t.trials, Histogram: t.hist}
	if t.trials > 0 {
		e.ControlProbability = float64(t.controls) / float64(t.trials)
		e.ExpectedSeats = float64(t.seatSum) / float64(t.trials)
	}
	return e
}
