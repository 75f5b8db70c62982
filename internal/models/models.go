package models

import (
	"math"
	"time"
)

// DefaultPollUncertainty is used when a poll row carries no margin of error.
const DefaultPollUncertainty = 3.0

type Party string

const (
	PartyDem  Party = "dem"
	PartyRep  Party = "rep"
	PartyNone Party = ""
)

type Method string

const (
	MethodFull   Method = "full"
	MethodHybrid Method = "hybrid"
)

// PartisanPair is a two-party share normalized to sum to 100.
// Margin is Rep minus Dem, so a positive margin favours Republicans.
type PartisanPair struct {
	Dem float64 `json:"dem"`
	Rep float64 `json:"rep"`
}

// NeutralPair is the 50/50 pair used whenever a signal is missing or degenerate.
func NeutralPair() PartisanPair {
	return PartisanPair{Dem: 50, Rep: 50}
}

// NewPair normalizes dem/rep to sum to 100. Non-finite or non-positive totals
// and negative components produce the neutral pair.
func NewPair(dem, rep float64) PartisanPair {
	total := dem + rep
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 || dem < 0 || rep < 0 {
		return NeutralPair()
	}
	d := dem / total * 100
	return PartisanPair{Dem: d, Rep: 100 - d}
}

func (p PartisanPair) Margin() float64 {
	return p.Rep - p.Dem
}

// SeatRatio is a seat's partisan lean relative to the nation. It is a
// projection factor, never a probability.
type SeatRatio struct {
	Dem float64
	Rep float64
}

func (r SeatRatio) Valid() bool {
	return r.Dem > 0 && r.Rep > 0 && !math.IsInf(r.Dem, 0) && !math.IsInf(r.Rep, 0)
}

type PollObservation struct {
	Date        time.Time
	Dem         float64
	Rep         float64
	Uncertainty float64
	Pollster    string
}

func (o PollObservation) Pair() PartisanPair {
	return NewPair(o.Dem, o.Rep)
}

// NationalPoint is one date of the rolling national generic-ballot estimate.
type NationalPoint struct {
	Date time.Time
	Dem  float64
	Rep  float64
}

func (n NationalPoint) Pair() PartisanPair {
	return NewPair(n.Dem, n.Rep)
}

// SeatModel is the combined estimate for one seat on one date.
type SeatModel struct {
	SeatID         string       `json:"seat_id"`
	Pair           PartisanPair `json:"pair"`
	Margin         float64      `json:"margin"`
	WinProbability float64      `json:"win_probability"`
	HasGeneric     bool         `json:"has_generic"`
	HasPoll        bool         `json:"has_poll"`
	HasIndicator   bool         `json:"has_indicator"`
}

type SeatMargin struct {
	SeatID string
	Margin float64
}

type HistogramPolicy struct {
	BinWidth int `mapstructure:"bin_width" json:"bin_width"`
	Min      int `mapstructure:"min" json:"min"`
	Max      int `mapstructure:"max" json:"max"`
}

// ChamberRules is one row of the chamber rules table. Seat counts are from
// the Democratic side: HeldDem seats are not up this cycle and are added to
// every trial total.
type ChamberRules struct {
	ID           string          `mapstructure:"id" json:"id"`
	Name         string          `mapstructure:"name" json:"name"`
	TotalSeats   int             `mapstructure:"total_seats" json:"total_seats"`
	HeldDem      int             `mapstructure:"held_dem" json:"held_dem"`
	HeldRep      int             `mapstructure:"held_rep" json:"held_rep"`
	ControlSeats int             `mapstructure:"control_seats" json:"control_seats"`
	TieWinner    Party           `mapstructure:"tie_winner" json:"tie_winner"`
	Method       Method          `mapstructure:"method" json:"method"`
	Histogram    HistogramPolicy `mapstructure:"histogram" json:"histogram"`
}

// Contested is the number of seats in the simulated pool.
func (r ChamberRules) Contested() int {
	return r.TotalSeats - r.HeldDem - r.HeldRep
}

// DemControls reports whether a Democratic seat total controls the chamber.
func (r ChamberRules) DemControls(seats int) bool {
	if seats >= r.ControlSeats {
		return true
	}
	return r.TieWinner == PartyDem && 2*seats == r.TotalSeats
}

type Histogram struct {
	Start    int   `json:"start"`
	BinWidth int   `json:"bin_width"`
	Counts   []int `json:"counts"`
}

// Ensemble aggregates N trials for a chamber.
type Ensemble struct {
	Trials             int                `json:"trials"`
	ControlProbability float64            `json:"control_probability"`
	ExpectedSeats      float64            `json:"expected_seats"`
	SeatWinFrequency   map[string]float64 `json:"seat_win_frequency,omitempty"`
	Histogram          Histogram          `json:"histogram"`
}

type SeatResult struct {
	WinProbability float64 `json:"win_probability"`
	Margin         float64 `json:"margin"`
}

// ChamberResult is the current-day forecast for one chamber.
type ChamberResult struct {
	ChamberID          string                `json:"chamber_id"`
	AsOf               time.Time             `json:"as_of"`
	ControlProbability float64               `json:"control_probability"`
	ExpectedSeats      float64               `json:"expected_seats"`
	TrialCount         int                   `json:"trial_count"`
	PerSeat            map[string]SeatResult `json:"per_seat"`
	Histogram          Histogram             `json:"histogram"`
	Indicator          *PartisanPair         `json:"indicator,omitempty"`
	NeutralSeats       int                   `json:"neutral_seats"`
}

type ChamberPoint struct {
	Date               time.Time `json:"date"`
	ControlProbability float64   `json:"control_probability"`
	ExpectedSeats      float64   `json:"expected_seats"`
}

type SeatPoint struct {
	Date           time.Time `json:"date"`
	WinProbability float64   `json:"win_probability"`
	Margin         float64   `json:"margin"`
}

type ChamberSeries struct {
	ChamberID string                 `json:"chamber_id"`
	Points    []ChamberPoint         `json:"points"`
	Seats     map[string][]SeatPoint `json:"seats"`
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
