package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/metrics"
	"github.com/lox/chamberodds/internal/models"
)

type RatioRow struct {
	Chamber string  `csv:"chamber"`
	Seat    string  `csv:"seat"`
	Dem     float64 `csv:"dem"`
	Rep     float64 `csv:"rep"`
}

// PollRow is one seat poll. Uncertainty may be blank.
type PollRow struct {
	Chamber     string  `csv:"chamber"`
	Seat        string  `csv:"seat"`
	Date        string  `csv:"date"`
	Pollster    string  `csv:"pollster"`
	Dem         float64 `csv:"dem"`
	Rep         float64 `csv:"rep"`
	Uncertainty string  `csv:"uncertainty"`
}

type NationalRow struct {
	Date string  `csv:"date"`
	Dem  float64 `csv:"dem"`
	Rep  float64 `csv:"rep"`
}

type NationalPollRow struct {
	Date     string  `csv:"date"`
	Pollster string  `csv:"pollster"`
	Dem      float64 `csv:"dem"`
	Rep      float64 `csv:"rep"`
}

// Ratios is keyed by chamber, then seat.
type Ratios map[string]map[string]models.SeatRatio

// Polls is keyed by chamber, then seat, with each seat's polls date-sorted.
type Polls map[string]map[string][]models.PollObservation

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

func LoadRatios(r io.Reader) (Ratios, error) {
	var rows []RatioRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse ratios: %w", err)
	}

	out := Ratios{}
	for i, row := range rows {
		ratio := models.SeatRatio{Dem: row.Dem, Rep: row.Rep}
		if !ratio.Valid() {
			return nil, fmt.Errorf("ratios row %d (%s/%s): ratio components must be positive", i+1, row.Chamber, row.Seat)
		}
		if out[row.Chamber] == nil {
			out[row.Chamber] = map[string]models.SeatRatio{}
		}
		out[row.Chamber][row.Seat] = ratio
	}
	return out, nil
}

// PollObservation converts a row, defaulting a blank uncertainty.
func (row PollRow) PollObservation() (models.PollObservation, error) {
	date, err := parseDate(row.Date)
	if err != nil {
		return models.PollObservation{}, fmt.Errorf("date %q: %w", row.Date, err)
	}
	obs := models.PollObservation{
		Date:        date,
		Dem:         row.Dem,
		Rep:         row.Rep,
		Uncertainty: models.DefaultPollUncertainty,
		Pollster:    row.Pollster,
	}
	if s := strings.TrimSpace(row.Uncertainty); s != "" {
		if obs.Uncertainty, err = strconv.ParseFloat(s, 64); err != nil {
			return models.PollObservation{}, fmt.Errorf("uncertainty %q: %w", row.Uncertainty, err)
		}
	}
	return obs, nil
}

// LoadPolls parses seat polls, dropping rows that fail validation.
func LoadPolls(r io.Reader) (Polls, error) {
	var rows []PollRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse polls: %w", err)
	}

	out := Polls{}
	dropped := 0
	for i, row := range rows {
		obs, err := row.PollObservation()
		if err != nil {
			return nil, fmt.Errorf("polls row %d: %w", i+1, err)
		}
		if flags := ValidatePoll(&obs); len(flags) > 0 {
			for _, f := range flags {
				metrics.PollsRejected.WithLabelValues(f).Inc()
			}
			zap.S().Warnw("ingest: dropping poll", "chamber", row.Chamber, "seat", row.Seat, "date", row.Date, "flags", QualityFlagsToJSON(flags))
			dropped++
			continue
		}
		if out[row.Chamber] == nil {
			out[row.Chamber] = map[string][]models.PollObservation{}
		}
		out[row.Chamber][row.Seat] = append(out[row.Chamber][row.Seat], obs)
	}

	for _, seats := range out {
		for _, obs := range seats {
			slices.SortStableFunc(obs, func(a, b models.PollObservation) int { return a.Date.Compare(b.Date) })
		}
	}
	if dropped > 0 {
		zap.S().Infow("ingest: polls loaded", "kept", len(rows)-dropped, "dropped", dropped)
	}
	return out, nil
}

// LoadNational parses a ready-made national series. Rows are sorted by date;
// a repeated date is an error.
func LoadNational(r io.Reader) ([]models.NationalPoint, error) {
	var rows []NationalRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse national series: %w", err)
	}

	out := make([]models.NationalPoint, 0, len(rows))
	for i, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("national row %d: date %q: %w", i+1, row.Date, err)
		}
		out = append(out, models.NationalPoint{Date: date, Dem: row.Dem, Rep: row.Rep})
	}
	slices.SortStableFunc(out, func(a, b models.NationalPoint) int { return a.Date.Compare(b.Date) })
	for i := 1; i < len(out); i++ {
		if out[i].Date.Equal(out[i-1].Date) {
			return nil, fmt.Errorf("national series: duplicate date %s", out[i].Date.Format(time.DateOnly))
		}
	}
	return out, nil
}

func LoadNationalPolls(r io.Reader) ([]NationalPoll, error) {
	var rows []NationalPollRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse national polls: %w", err)
	}
	out := make([]NationalPoll, 0, len(rows))
	for i, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("national polls row %d: date %q: %w", i+1, row.Date, err)
		}
		out = append(out, NationalPoll{Date: date, Pollster: row.Pollster, Dem: row.Dem, Rep: row.Rep})
	}
	return out, nil
}

func WritePolls(w io.Writer, rows []PollRow) error {
	return gocsv.Marshal(rows, w)
}

// ReadPollRows reads polls.csv rows as written, without validation.
func ReadPollRows(r io.Reader) ([]PollRow, error) {
	var rows []PollRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse polls: %w", err)
	}
	return rows, nil
}

// MergePollRows keeps existing rows dated before from and appends fetched,
// which replaces everything on or after from. The result is date-sorted.
func MergePollRows(existing, fetched []PollRow, from time.Time) []PollRow {
	cutoff := from.Format(time.DateOnly)
	out := make([]PollRow, 0, len(existing)+len(fetched))
	for _, row := range existing {
		if strings.TrimSpace(row.Date) < cutoff {
			out = append(out, row)
		}
	}
	out = append(out, fetched...)
	slices.SortStableFunc(out, func(a, b PollRow) int {
		return strings.Compare(strings.TrimSpace(a.Date), strings.TrimSpace(b.Date))
	})
	return out
}

// Inputs is the full snapshot a run consumes.
type Inputs struct {
	Ratios   Ratios
	Polls    Polls
	National []models.NationalPoint
}

const (
	RatiosFile        = "ratios.csv"
	PollsFile         = "polls.csv"
	NationalFile      = "national.csv"
	NationalPollsFile = "national_polls.csv"
)

// LoadDir reads a data directory. national.csv is used when present;
// otherwise the series is built from national_polls.csv. A missing polls
// file means no seat polling.
func LoadDir(dir string, national NationalOptions) (*Inputs, error) {
	in := &Inputs{Polls: Polls{}}

	if err := withFile(filepath.Join(dir, RatiosFile), func(r io.Reader) (err error) {
		in.Ratios, err = LoadRatios(r)
		return err
	}); err != nil {
		return nil, err
	}

	pollsPath := filepath.Join(dir, PollsFile)
	if _, err := os.Stat(pollsPath); err == nil {
		if err := withFile(pollsPath, func(r io.Reader) (err error) {
			in.Polls, err = LoadPolls(r)
			return err
		}); err != nil {
			return nil, err
		}
	} else {
		zap.S().Warnw("ingest: no seat polls file", "path", pollsPath)
	}

	nationalPath := filepath.Join(dir, NationalFile)
	if _, err := os.Stat(nationalPath); err == nil {
		err := withFile(nationalPath, func(r io.Reader) (err error) {
			in.National, err = LoadNational(r)
			return err
		})
		return in, err
	}

	var raw []NationalPoll
	if err := withFile(filepath.Join(dir, NationalPollsFile), func(r io.Reader) (err error) {
		raw, err = LoadNationalPolls(r)
		return err
	}); err != nil {
		return nil, err
	}
	in.National = RollingNational(raw, national)
	return in, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
