package ingest

import (
	"slices"
	"time"

	"github.com/lox/chamberodds/internal/models"
)

// NationalPoll is a single national generic-ballot poll.
type NationalPoll struct {
	Date     time.Time
	Pollster string
	Dem      float64
	Rep      float64
}

type NationalOptions struct {
	// Window is the number of most recent polls averaged per date.
	Window int
	// Pollsters restricts which polls count. Empty allows all.
	Pollsters []string
}

// RollingNational builds a daily national series: one point per distinct poll
// date, each the mean of the last Window allowlisted polls on or before it.
func RollingNational(polls []NationalPoll, opts NationalOptions) []models.NationalPoint {
	window := max(opts.Window, 1)

	allowed := make(map[string]bool, len(opts.Pollsters))
	for _, p := range opts.Pollsters {
		allowed[p] = true
	}

	kept := make([]NationalPoll, 0, len(polls))
	for _, p := range polls {
		if len(allowed) > 0 && !allowed[p.Pollster] {
			continue
		}
		p.Date = models.Day(p.Date)
		kept = append(kept, p)
	}
	slices.SortStableFunc(kept, func(a, b NationalPoll) int { return a.Date.Compare(b.Date) })

	var out []models.NationalPoint
	for i := 0; i < len(kept); i++ {
		// Emit once per date, after the last poll on it.
		if i+1 < len(kept) && kept[i+1].Date.Equal(kept[i].Date) {
			continue
		}
		lo := max(0, i+1-window)
		var dem, rep float64
		for _, p := range kept[lo : i+1] {
			dem += p.Dem
			rep += p.Rep
		}
		n := float64(i + 1 - lo)
		out = append(out, models.NationalPoint{Date: kept[i].Date, Dem: dem / n, Rep: rep / n})
	}
	return out
}
