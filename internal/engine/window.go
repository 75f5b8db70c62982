package engine

import (
	"slices"
	"sort"
	"time"

	"github.com/lox/chamberodds/internal/models"
)

// PollWindow is one seat's date-sorted polls with prefix sums, so the mean of
// the most recent N polls as of a date is a subtraction once the cursor has
// found the date. Advance only moves forward, which keeps a full historical
// replay linear in the number of polls.
type PollWindow struct {
	dates  []time.Time
	demSum []float64
	repSum []float64
	size   int
	next   int
}

func NewPollWindow(obs []models.PollObservation, size int) *PollWindow {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b models.PollObservation) int {
		return a.Date.Compare(b.Date)
	})

	w := &PollWindow{
		dates:  make([]time.Time, len(sorted)),
		demSum: make([]float64, len(sorted)+1),
		repSum: make([]float64, len(sorted)+1),
		size:   max(size, 1),
	}
	for i, o := range sorted {
		w.dates[i] = models.Day(o.Date)
		w.demSum[i+1] = w.demSum[i] + o.Dem
		w.repSum[i+1] = w.repSum[i] + o.Rep
	}
	return w
}

func (w *PollWindow) Len() int {
	return len(w.dates)
}

// Advance moves the cursor to asOf and returns the window mean. asOf must not
// go backwards between calls.
func (w *PollWindow) Advance(asOf time.Time) (models.PartisanPair, bool) {
	day := models.Day(asOf)
	for w.next < len(w.dates) && !w.dates[w.next].After(day) {
		w.next++
	}
	return w.mean(w.next)
}

// MeanAsOf is the random-access form of Advance and leaves the cursor alone.
func (w *PollWindow) MeanAsOf(asOf time.Time) (models.PartisanPair, bool) {
	day := models.Day(asOf)
	n := sort.Search(len(w.dates), func(i int) bool { return w.dates[i].After(day) })
	return w.mean(n)
}

func (w *PollWindow) mean(n int) (models.PartisanPair, bool) {
	if n == 0 {
		return models.PartisanPair{}, false
	}
	lo := max(n-w.size, 0)
	count := float64(n - lo)
	return models.NewPair((w.demSum[n]-w.demSum[lo])/count, (w.repSum[n]-w.repSum[lo])/count), true
}

// NationalCursor walks a date-sorted national series forward.
type NationalCursor struct {
	points []models.NationalPoint
	next   int
}

func NewNationalCursor(points []models.NationalPoint) *NationalCursor {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b models.NationalPoint) int {
		return a.Date.Compare(b.Date)
	})
	return &NationalCursor{points: sorted}
}

// Advance returns the latest point on or before asOf, or nil if none.
func (c *NationalCursor) Advance(asOf time.Time) *models.PartisanPair {
	day := models.Day(asOf)
	for c.next < len(c.points) && !models.Day(c.points[c.next].Date).After(day) {
		c.next++
	}
	if c.next == 0 {
		return nil
	}
	p := c.points[c.next-1].Pair()
	return &p
}

// Span returns the first and last dates of the series.
func (c *NationalCursor) Span() (time.Time, time.Time, bool) {
	if len(c.points) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return models.Day(c.points[0].Date), models.Day(c.points[len(c.points)-1].Date), true
}
