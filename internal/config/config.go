package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lox/chamberodds/internal/compact"
	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/models"
)

//go:embed defaults.yaml
var defaultYAML []byte

type Model struct {
	Sigma           float64          `mapstructure:"sigma"`
	Trials          int              `mapstructure:"trials"`
	Swing           float64          `mapstructure:"swing"`
	GridPoints      int              `mapstructure:"grid_points"`
	PollWindow      int              `mapstructure:"poll_window"`
	CompetitiveBand float64          `mapstructure:"competitive_band"`
	CheckpointDays  int              `mapstructure:"checkpoint_days"`
	Weights         forecast.Weights `mapstructure:"weights"`
}

type History struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// National configures building the generic-ballot series from raw polls.
// An empty pollster list allows every pollster.
type National struct {
	Window    int      `mapstructure:"window"`
	Pollsters []string `mapstructure:"pollsters"`
}

type Config struct {
	Seed       uint64                `mapstructure:"seed"`
	Model      Model                 `mapstructure:"model"`
	History    History               `mapstructure:"history"`
	Downsample compact.Policy        `mapstructure:"downsample"`
	National   National              `mapstructure:"national"`
	Chambers   []models.ChamberRules `mapstructure:"chambers"`
}

// Load reads the embedded defaults, merges path over them when set, applies
// CHAMBERODDS_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}

	v.SetEnvPrefix("CHAMBERODDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects structurally invalid configuration. These are defects in
// the run setup, not noisy data, so callers should abort.
func (c *Config) Validate() error {
	m := c.Model
	switch {
	case m.Sigma <= 0:
		return fmt.Errorf("model.sigma must be positive, got %v", m.Sigma)
	case m.Trials <= 0:
		return fmt.Errorf("model.trials must be positive, got %d", m.Trials)
	case m.Swing < 0:
		return fmt.Errorf("model.swing must not be negative, got %v", m.Swing)
	case m.GridPoints < 1:
		return fmt.Errorf("model.grid_points must be at least 1, got %d", m.GridPoints)
	case m.PollWindow < 1:
		return fmt.Errorf("model.poll_window must be at least 1, got %d", m.PollWindow)
	case m.CompetitiveBand < 0:
		return fmt.Errorf("model.competitive_band must not be negative, got %v", m.CompetitiveBand)
	case m.CheckpointDays < 1:
		return fmt.Errorf("model.checkpoint_days must be at least 1, got %d", m.CheckpointDays)
	}
	if err := m.Weights.Validate(); err != nil {
		return fmt.Errorf("model.weights: %w", err)
	}
	if _, _, err := c.History.Range(); err != nil {
		return err
	}
	for _, t := range c.Downsample.Tiers {
		if t.Every < 1 || t.MaxRange <= 0 {
			return fmt.Errorf("downsample tier %+v: every must be >= 1 and max_range positive", t)
		}
	}
	if c.National.Window < 1 {
		return fmt.Errorf("national.window must be at least 1, got %d", c.National.Window)
	}

	if len(c.Chambers) == 0 {
		return fmt.Errorf("no chambers configured")
	}
	seen := map[string]bool{}
	for i, r := range c.Chambers {
		if r.ID == "" {
			return fmt.Errorf("chambers[%d]: missing id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("chambers[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if err := ValidateRules(r); err != nil {
			return err
		}
	}
	return nil
}

func ValidateRules(r models.ChamberRules) error {
	switch {
	case r.TotalSeats <= 0:
		return fmt.Errorf("chamber %s: total_seats must be positive", r.ID)
	case r.HeldDem < 0 || r.HeldRep < 0:
		return fmt.Errorf("chamber %s: held seat counts must not be negative", r.ID)
	case r.Contested() <= 0:
		return fmt.Errorf("chamber %s: no contested seats (%d total, %d+%d held)", r.ID, r.TotalSeats, r.HeldDem, r.HeldRep)
	case r.ControlSeats <= 0 || r.ControlSeats > r.TotalSeats:
		return fmt.Errorf("chamber %s: control_seats %d outside 1..%d", r.ID, r.ControlSeats, r.TotalSeats)
	case r.Histogram.BinWidth < 0:
		return fmt.Errorf("chamber %s: histogram bin_width must not be negative", r.ID)
	case r.Histogram.Max < r.Histogram.Min:
		return fmt.Errorf("chamber %s: histogram max below min", r.ID)
	}
	switch r.TieWinner {
	case models.PartyNone, models.PartyDem, models.PartyRep:
	default:
		return fmt.Errorf("chamber %s: unknown tie_winner %q", r.ID, r.TieWinner)
	}
	switch r.Method {
	case models.MethodFull, models.MethodHybrid:
	default:
		return fmt.Errorf("chamber %s: unknown method %q", r.ID, r.Method)
	}
	return nil
}

// Range parses the optional history bounds. Empty strings are zero times.
func (h History) Range() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if h.Start != "" {
		if start, err = time.Parse(time.DateOnly, h.Start); err != nil {
			return start, end, fmt.Errorf("history.start: %w", err)
		}
	}
	if h.End != "" {
		if end, err = time.Parse(time.DateOnly, h.End); err != nil {
			return start, end, fmt.Errorf("history.end: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("history.end %s before start %s", h.End, h.Start)
	}
	return start, end, nil
}
