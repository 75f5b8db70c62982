package forecast

import "github.com/lox/chamberodds/internal/models"

// Resolve is the single fallback point for optional signals: a missing pair
// becomes the neutral 50/50 pair with margin 0.
func Resolve(p *models.PartisanPair) (models.PartisanPair, bool) {
	if p == nil {
		return models.NeutralPair(), false
	}
	return *p, true
}

// ResolveMargin returns the margin of p, or 0 when p is missing.
func ResolveMargin(p *models.PartisanPair) float64 {
	pair, _ := Resolve(p)
	return pair.Margin()
}
