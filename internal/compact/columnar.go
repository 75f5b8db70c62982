package compact

import (
	"fmt"
	"sort"
	"time"

	"github.com/lox/chamberodds/internal/models"
)

// SeatColumns holds one seat's points as positions in the shared date index.
// Start is set when the points occupy consecutive index entries; otherwise
// Index lists every position.
type SeatColumns struct {
	Start          *int      `json:"start,omitempty"`
	Index          []int     `json:"idx,omitempty"`
	WinProbability []float64 `json:"p"`
	Margin         []float64 `json:"margin"`
}

func (s SeatColumns) positions() []int {
	if s.Start == nil {
		return s.Index
	}
	out := make([]int, len(s.WinProbability))
	for i := range out {
		out[i] = *s.Start + i
	}
	return out
}

type Columnar struct {
	Dates []string               `json:"dates"`
	Seats map[string]SeatColumns `json:"seats"`
}

// Encode builds the shared date index from every seat's dates and re-encodes
// each seat against it.
func Encode(series map[string][]models.SeatPoint) Columnar {
	seen := map[string]struct{}{}
	for _, points := range series {
		for _, p := range points {
			seen[p.Date.Format(time.DateOnly)] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	position := make(map[string]int, len(dates))
	for i, d := range dates {
		position[d] = i
	}

	out := Columnar{Dates: dates, Seats: make(map[string]SeatColumns, len(series))}
	for id, points := range series {
		cols := SeatColumns{
			WinProbability: make([]float64, len(points)),
			Margin:         make([]float64, len(points)),
		}
		idx := make([]int, len(points))
		dense := len(points) > 0
		for i, p := range points {
			idx[i] = position[p.Date.Format(time.DateOnly)]
			cols.WinProbability[i] = p.WinProbability
			cols.Margin[i] = p.Margin
			if i > 0 && idx[i] != idx[i-1]+1 {
				dense = false
			}
		}
		if dense {
			start := idx[0]
			cols.Start = &start
		} else {
			cols.Index = idx
		}
		out.Seats[id] = cols
	}
	return out
}

// Decode reproduces a seat's original points.
func (c Columnar) Decode(seatID string) ([]models.SeatPoint, error) {
	cols, ok := c.Seats[seatID]
	if !ok {
		return nil, fmt.Errorf("seat %s not in series", seatID)
	}
	if len(cols.Margin) != len(cols.WinProbability) {
		return nil, fmt.Errorf("seat %s: %d probabilities but %d margins", seatID, len(cols.WinProbability), len(cols.Margin))
	}
	pos := cols.positions()
	if len(pos) != len(cols.WinProbability) {
		return nil, fmt.Errorf("seat %s: %d positions but %d values", seatID, len(pos), len(cols.WinProbability))
	}

	out := make([]models.SeatPoint, len(pos))
	for i, p := range pos {
		if p < 0 || p >= len(c.Dates) {
			return nil, fmt.Errorf("seat %s: date index %d out of range", seatID, p)
		}
		d, err := time.Parse(time.DateOnly, c.Dates[p])
		if err != nil {
			return nil, fmt.Errorf("seat %s: parse date: %w", seatID, err)
		}
		out[i] = models.SeatPoint{
			Date:           d,
			WinProbability: cols.WinProbability[i],
			Margin:         cols.Margin[i],
		}
	}
	return out, nil
}

// DecodeAll decodes every seat.
func (c Columnar) DecodeAll() (map[string][]models.SeatPoint, error) {
	out := make(map[string][]models.SeatPoint, len(c.Seats))
	for id := range c.Seats {
		points, err := c.Decode(id)
		if err != nil {
			return nil, err
		}
		out[id] = points
	}
	return out, nil
}
