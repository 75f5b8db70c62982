package forecast

import (
	"github.com/lox/chamberodds/internal/models"
)

// Snapshot is everything known about a chamber's seats on one date.
type Snapshot struct {
	SeatIDs  []string
	Ratios   map[string]models.SeatRatio
	Polls    map[string]models.PartisanPair
	National *models.PartisanPair
}

type SeatModels struct {
	Seats     []models.SeatModel
	Indicator *models.PartisanPair
	// Neutral counts seats where no signal was available.
	Neutral int
}

// Model turns a snapshot into one combined pair and win probability per seat,
// in SeatIDs order.
type Model struct {
	Table   *WinTable
	Weights Weights
}

// Build combines every available signal per seat. Seats with none resolve to
// the neutral pair and are counted in Neutral.
func (m Model) Build(snap Snapshot) SeatModels {
	out := SeatModels{Seats: make([]models.SeatModel, 0, len(snap.SeatIDs))}

	var generics map[string]models.PartisanPair
	if snap.National != nil {
		generics = ProjectAll(*snap.National, snap.Ratios)
	}

	var indicator *models.PartisanPair
	if ind, ok := Indicator(snap.Ratios, snap.Polls); ok {
		indicator = &ind
		out.Indicator = indicator
	}

	for _, id := range snap.SeatIDs {
		var generic, poll, projected *models.PartisanPair
		ratio, hasRatio := snap.Ratios[id]
		hasRatio = hasRatio && ratio.Valid()

		if p, ok := generics[id]; ok {
			generic = &p
		}
		if p, ok := snap.Polls[id]; ok {
			poll = &p
		}
		if hasRatio && indicator != nil {
			p := Project(*indicator, ratio)
			projected = &p
		}

		seat := models.SeatModel{
			SeatID:       id,
			HasGeneric:   generic != nil,
			HasPoll:      poll != nil,
			HasIndicator: projected != nil,
		}
		var combined *models.PartisanPair
		if generic != nil || poll != nil || projected != nil {
			p := Combine(m.Weights, generic, poll, projected)
			combined = &p
		} else {
			out.Neutral++
		}
		seat.Pair, _ = Resolve(combined)
		seat.Margin = ResolveMargin(combined)
		seat.WinProbability = m.Table.Probability(seat.Margin)
		out.Seats = append(out.Seats, seat)
	}
	return out
}

func (s SeatModels) Margins() []models.SeatMargin {
	out := make([]models.SeatMargin, len(s.Seats))
	for i, seat := range s.Seats {
		out[i] = models.SeatMargin{SeatID: seat.SeatID, Margin: seat.Margin}
	}
	return out
}
