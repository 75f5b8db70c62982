package ingest

import (
	"encoding/json"
	"math"

	"github.com/lox/chamberodds/internal/models"
)

const (
	FlagShareOutOfRange    = "share_out_of_range"
	FlagShareSumUnlikely   = "share_sum_unlikely"
	FlagUncertaintyInvalid = "uncertainty_invalid"
	FlagDateMissing        = "date_missing"
)

// ValidatePoll returns quality flags for a poll row. Any flag means the row
// is dropped by the loaders.
func ValidatePoll(obs *models.PollObservation) []string {
	var flags []string

	if obs.Date.IsZero() {
		flags = append(flags, FlagDateMissing)
	}

	if outOfRange(obs.Dem) || outOfRange(obs.Rep) {
		flags = append(flags, FlagShareOutOfRange)
	}

	// Two-party shares below 20 combined means a malformed row, not undecideds.
	sum := obs.Dem + obs.Rep
	if sum < 20 || sum > 101 {
		flags = append(flags, FlagShareSumUnlikely)
	}

	if obs.Uncertainty <= 0 || math.IsNaN(obs.Uncertainty) || math.IsInf(obs.Uncertainty, 0) {
		flags = append(flags, FlagUncertaintyInvalid)
	}

	return flags
}

func outOfRange(share float64) bool {
	return math.IsNaN(share) || share < 0 || share > 100
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
