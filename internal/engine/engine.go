package engine

import (
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/metrics"
	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/simulate"
)

type Config struct {
	Trials          int
	Swing           float64
	GridPoints      int
	PollWindow      int
	CompetitiveBand float64
	CheckpointDays  int
	// Start and End clip the replayed range; zero values use the national
	// series bounds.
	Start time.Time
	End   time.Time
}

// Engine runs one chamber. It is not safe for concurrent use; the pipeline
// gives every chamber its own Engine and random source.
type Engine struct {
	Model  forecast.Model
	Config Config
	Rand   *rand.Rand
}

func (e *Engine) simulator() *simulate.Simulator {
	return &simulate.Simulator{
		Table:  e.Model.Table,
		Trials: e.Config.Trials,
		Swing:  e.Config.Swing,
		Rand:   e.Rand,
	}
}

func (e *Engine) hybrid() *simulate.Hybrid {
	return &simulate.Hybrid{
		Table:      e.Model.Table,
		Trials:     e.Config.Trials,
		Swing:      e.Config.Swing,
		GridPoints: e.Config.GridPoints,
		Rand:       e.Rand,
	}
}

// Current forecasts the chamber as of asOf with the full per-trial simulation.
func (e *Engine) Current(in ChamberInput, national []models.NationalPoint, asOf time.Time) models.ChamberResult {
	nat := NewNationalCursor(national).Advance(asOf)
	polls := pollMeans(in.windows(e.Config.PollWindow), asOf, false)
	seats := e.Model.Build(in.snapshot(nat, polls))

	ens := e.simulator().Run(in.Rules, seats.Margins())

	result := models.ChamberResult{
		ChamberID:          in.Rules.ID,
		AsOf:               models.Day(asOf),
		ControlProbability: ens.ControlProbability,
		ExpectedSeats:      ens.ExpectedSeats,
		TrialCount:         ens.Trials,
		PerSeat:            make(map[string]models.SeatResult, len(seats.Seats)),
		Histogram:          ens.Histogram,
		Indicator:          seats.Indicator,
		NeutralSeats:       seats.Neutral,
	}
	for _, s := range seats.Seats {
		result.PerSeat[s.SeatID] = models.SeatResult{
			WinProbability: ens.SeatWinFrequency[s.SeatID],
			Margin:         s.Margin,
		}
	}

	metrics.NeutralSeats.WithLabelValues(in.Rules.ID).Set(float64(seats.Neutral))
	metrics.ControlProbability.WithLabelValues(in.Rules.ID).Set(ens.ControlProbability)
	if seats.Neutral > 0 {
		zap.S().Infow("engine: seats without signal defaulted to even", "chamber", in.Rules.ID, "seats", seats.Neutral)
	}
	return result
}

func (e *Engine) dateRange(cursor *NationalCursor) (time.Time, time.Time, bool) {
	start, end, ok := cursor.Span()
	if !ok {
		return start, end, false
	}
	if !e.Config.Start.IsZero() && models.Day(e.Config.Start).After(start) {
		start = models.Day(e.Config.Start)
	}
	if !e.Config.End.IsZero() && models.Day(e.Config.End).Before(end) {
		end = models.Day(e.Config.End)
	}
	return start, end, !start.After(end)
}

// Series replays the chamber day by day over the national series. Chambers
// using the hybrid method only track seats that were competitive at some
// checkpoint, and track them analytically.
func (e *Engine) Series(in ChamberInput, national []models.NationalPoint) models.ChamberSeries {
	out := models.ChamberSeries{
		ChamberID: in.Rules.ID,
		Points:    []models.ChamberPoint{},
		Seats:     map[string][]models.SeatPoint{},
	}

	cursor := NewNationalCursor(national)
	start, end, ok := e.dateRange(cursor)
	if !ok {
		return out
	}

	windows := in.windows(e.Config.PollWindow)
	began := time.Now()
	if in.Rules.Method == models.MethodHybrid {
		e.hybridSeries(&out, in, cursor, windows, start, end)
	} else {
		e.fullSeries(&out, in, cursor, windows, start, end)
	}

	metrics.SeriesDays.WithLabelValues(in.Rules.ID).Add(float64(len(out.Points)))
	zap.S().Infow("engine: series complete",
		"chamber", in.Rules.ID,
		"method", in.Rules.Method,
		"days", len(out.Points),
		"tracked_seats", len(out.Seats),
		"elapsed", time.Since(began).String(),
	)
	return out
}

func (e *Engine) fullSeries(out *models.ChamberSeries, in ChamberInput, cursor *NationalCursor, windows map[string]*PollWindow, start, end time.Time) {
	sim := e.simulator()
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		nat := cursor.Advance(day)
		seats := e.Model.Build(in.snapshot(nat, pollMeans(windows, day, true)))
		ens := sim.Run(in.Rules, seats.Margins())

		out.Points = append(out.Points, models.ChamberPoint{
			Date:               day,
			ControlProbability: ens.ControlProbability,
			ExpectedSeats:      ens.ExpectedSeats,
		})
		for _, s := range seats.Seats {
			out.Seats[s.SeatID] = append(out.Seats[s.SeatID], models.SeatPoint{
				Date:           day,
				WinProbability: ens.SeatWinFrequency[s.SeatID],
				Margin:         s.Margin,
			})
		}
	}
}

func (e *Engine) hybridSeries(out *models.ChamberSeries, in ChamberInput, cursor *NationalCursor, windows map[string]*PollWindow, start, end time.Time) {
	hyb := e.hybrid()
	every := max(e.Config.CheckpointDays, 1)

	var (
		days        []time.Time
		margins     [][]float64
		competitive = make([]bool, len(in.SeatIDs))
	)
	for i, day := 0, start; !day.After(end); i, day = i+1, day.AddDate(0, 0, 1) {
		nat := cursor.Advance(day)
		seats := e.Model.Build(in.snapshot(nat, pollMeans(windows, day, true)))

		m := make([]float64, len(seats.Seats))
		for j, s := range seats.Seats {
			m[j] = s.Margin
		}
		ens := hyb.Run(in.Rules, m)

		out.Points = append(out.Points, models.ChamberPoint{
			Date:               day,
			ControlProbability: ens.ControlProbability,
			ExpectedSeats:      ens.ExpectedSeats,
		})
		days = append(days, day)
		margins = append(margins, m)

		if i%every == 0 || day.Equal(end) {
			for j, margin := range m {
				if math.Abs(margin) <= e.Config.CompetitiveBand {
					competitive[j] = true
				}
			}
		}
	}

	for j, id := range in.SeatIDs {
		if !competitive[j] {
			continue
		}
		points := make([]models.SeatPoint, len(days))
		for i, day := range days {
			points[i] = models.SeatPoint{
				Date:           day,
				WinProbability: e.Model.Table.Probability(margins[i][j]),
				Margin:         margins[i][j],
			}
		}
		out.Seats[id] = points
	}
}
