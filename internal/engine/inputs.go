package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/models"
)

// ChamberInput is the read-only snapshot one chamber is simulated against.
type ChamberInput struct {
	Rules   models.ChamberRules
	SeatIDs []string
	Ratios  map[string]models.SeatRatio
	Polls   map[string][]models.PollObservation
}

// NewChamberInput collects the seat pool from every seat with a ratio or a
// poll. If fewer seats are known than the chamber contests, neutral
// placeholder seats fill the pool so the seat accounting stays fixed. More
// known seats than contested seats is a configuration error.
func NewChamberInput(rules models.ChamberRules, ratios map[string]models.SeatRatio, polls map[string][]models.PollObservation) (ChamberInput, error) {
	known := make(map[string]struct{}, len(ratios)+len(polls))
	for id := range ratios {
		known[id] = struct{}{}
	}
	for id := range polls {
		known[id] = struct{}{}
	}

	contested := rules.Contested()
	if len(known) > contested {
		return ChamberInput{}, fmt.Errorf("chamber %s: %d seats in input data but only %d contested", rules.ID, len(known), contested)
	}

	ids := make([]string, 0, contested)
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := 0; len(ids) < contested; i++ {
		id := fmt.Sprintf("%s-unassigned-%02d", rules.ID, i+1)
		if _, ok := known[id]; ok {
			continue
		}
		ids = append(ids, id)
	}

	return ChamberInput{
		Rules:   rules,
		SeatIDs: ids,
		Ratios:  ratios,
		Polls:   polls,
	}, nil
}

func (in ChamberInput) windows(size int) map[string]*PollWindow {
	out := make(map[string]*PollWindow, len(in.Polls))
	for id, obs := range in.Polls {
		if len(obs) == 0 {
			continue
		}
		out[id] = NewPollWindow(obs, size)
	}
	return out
}

func (in ChamberInput) snapshot(national *models.PartisanPair, polls map[string]models.PartisanPair) forecast.Snapshot {
	return forecast.Snapshot{
		SeatIDs:  in.SeatIDs,
		Ratios:   in.Ratios,
		Polls:    polls,
		National: national,
	}
}

// pollMeans evaluates every window as of asOf. With advance set the windows'
// forward-only cursors are used.
func pollMeans(windows map[string]*PollWindow, asOf time.Time, advance bool) map[string]models.PartisanPair {
	out := make(map[string]models.PartisanPair, len(windows))
	for id, w := range windows {
		var (
			p  models.PartisanPair
			ok bool
		)
		if advance {
			p, ok = w.Advance(asOf)
		} else {
			p, ok = w.MeanAsOf(asOf)
		}
		if ok {
			out[id] = p
		}
	}
	return out
}
