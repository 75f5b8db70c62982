package forecast

import (
	"fmt"

	"github.com/lox/chamberodds/internal/models"
)

// Weights are the fixed per-signal weights applied to every seat.
type Weights struct {
	Generic   float64 `mapstructure:"generic" json:"generic"`
	Poll      float64 `mapstructure:"poll" json:"poll"`
	Indicator float64 `mapstructure:"indicator" json:"indicator"`
}

func (w Weights) Validate() error {
	if w.Generic < 0 || w.Poll < 0 || w.Indicator < 0 {
		return fmt.Errorf("signal weights must be non-negative: %+v", w)
	}
	return nil
}

// Combine averages the signals that are present. Absent signals carry zero
// weight; if nothing carries weight the neutral pair is returned.
func Combine(w Weights, generic, poll, indicator *models.PartisanPair) models.PartisanPair {
	var (
		dem, rep, total float64
		used            int
		only            *models.PartisanPair
	)
	add := func(p *models.PartisanPair, weight float64) {
		if p == nil || weight <= 0 {
			return
		}
		dem += p.Dem * weight
		rep += p.Rep * weight
		total += weight
		used++
		only = p
	}
	add(generic, w.Generic)
	add(poll, w.Poll)
	add(indicator, w.Indicator)

	switch used {
	case 0:
		return models.NeutralPair()
	case 1:
		return *only
	}
	return models.NewPair(dem/total, rep/total)
}
