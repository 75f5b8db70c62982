package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chamberodds/internal/models"
)

func pair(dem, rep float64) *models.PartisanPair {
	p := models.NewPair(dem, rep)
	return &p
}

func TestCombine(t *testing.T) {
	w := Weights{Generic: 0.4, Poll: 0.4, Indicator: 0.2}

	tests := []struct {
		name      string
		weights   Weights
		generic   *models.PartisanPair
		poll      *models.PartisanPair
		indicator *models.PartisanPair
		want      models.PartisanPair
	}{
		{
			name:    "only generic present",
			weights: w,
			generic: pair(47.3, 52.7),
			want:    *pair(47.3, 52.7),
		},
		{
			name:    "only poll present",
			weights: w,
			poll:    pair(61.1, 38.9),
			want:    *pair(61.1, 38.9),
		},
		{
			name:    "nothing present",
			weights: w,
			want:    models.NeutralPair(),
		},
		{
			name:      "all weights zero",
			weights:   Weights{},
			generic:   pair(40, 60),
			poll:      pair(45, 55),
			indicator: pair(30, 70),
			want:      models.NeutralPair(),
		},
		{
			name:    "missing signal does not pull toward even",
			weights: w,
			generic: pair(40, 60),
			poll:    pair(40, 60),
			want:    *pair(40, 60),
		},
		{
			name:      "weighted average of all three",
			weights:   Weights{Generic: 1, Poll: 1, Indicator: 2},
			generic:   pair(40, 60),
			poll:      pair(50, 50),
			indicator: pair(60, 40),
			want:      *pair(52.5, 47.5),
		},
		{
			name:    "zero-weight signal ignored",
			weights: Weights{Generic: 1, Poll: 0, Indicator: 0},
			generic: pair(44, 56),
			poll:    pair(70, 30),
			want:    *pair(44, 56),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.weights, tt.generic, tt.poll, tt.indicator)
			assert.InDelta(t, tt.want.Dem, got.Dem, 1e-9)
			assert.InDelta(t, tt.want.Rep, got.Rep, 1e-9)
			assert.InDelta(t, 100, got.Dem+got.Rep, 1e-9)
		})
	}
}

func TestCombineSingleSignalIsExact(t *testing.T) {
	p := pair(43.21, 56.79)
	got := Combine(Weights{Generic: 0.37, Poll: 0.41, Indicator: 0.22}, nil, nil, p)
	require.Equal(t, *p, got)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, Weights{Generic: 1}.Validate())
	assert.Error(t, Weights{Generic: 1, Poll: -0.1}.Validate())
}

func TestResolve(t *testing.T) {
	got, ok := Resolve(nil)
	assert.False(t, ok)
	assert.Equal(t, models.NeutralPair(), got)
	assert.Equal(t, 0.0, ResolveMargin(nil))
	assert.InDelta(t, 10, ResolveMargin(pair(45, 55)), 1e-9)
}
