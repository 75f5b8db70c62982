package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/chamberodds/internal/compact"
	"github.com/lox/chamberodds/internal/config"
	"github.com/lox/chamberodds/internal/engine"
	"github.com/lox/chamberodds/internal/forecast"
	"github.com/lox/chamberodds/internal/ingest"
	"github.com/lox/chamberodds/internal/models"
	"github.com/lox/chamberodds/internal/simulate"
	"github.com/lox/chamberodds/internal/store"
)

type Options struct {
	DataDir string
	// OutDir receives one JSON file per chamber plus summary.json. Empty
	// skips file output.
	OutDir string
	// AsOf is the current-day forecast date. Zero means today.
	AsOf time.Time
}

// ChamberOutput is everything one chamber produces in a run.
type ChamberOutput struct {
	Rules   models.ChamberRules   `json:"rules"`
	Result  models.ChamberResult  `json:"result"`
	Series  []models.ChamberPoint `json:"series"`
	Seats   *compact.Columnar     `json:"seats"`
	Tracked int                   `json:"tracked_seats"`
}

type Report struct {
	RunID    string          `json:"run_id,omitempty"`
	Seed     uint64          `json:"seed"`
	AsOf     time.Time       `json:"as_of"`
	Chambers []ChamberOutput `json:"chambers"`
}

type Pipeline struct {
	cfg   *config.Config
	store *store.Store
}

// New returns a pipeline. st may be nil, in which case nothing is persisted.
func New(cfg *config.Config, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, store: st}
}

// Run loads inputs, forecasts every configured chamber concurrently and
// persists the results.
func (p *Pipeline) Run(ctx context.Context, opts Options) (report *Report, err error) {
	seed := p.cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var run *store.ForecastRun
	if p.store != nil {
		if run, err = p.store.StartRun(seed); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
		defer func() {
			if cerr := p.store.CompleteRun(run, err); cerr != nil {
				zap.S().Errorw("pipeline: complete run failed", "run", run.ID, "error", cerr)
			}
		}()
	}

	inputs, err := ingest.LoadDir(opts.DataDir, ingest.NationalOptions{
		Window:    p.cfg.National.Window,
		Pollsters: p.cfg.National.Pollsters,
	})
	if err != nil {
		return nil, fmt.Errorf("load inputs: %w", err)
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = models.Day(asOf)

	report = &Report{Seed: seed, AsOf: asOf, Chambers: make([]ChamberOutput, len(p.cfg.Chambers))}
	if run != nil {
		report.RunID = run.ID
	}

	engineCfg, err := p.engineConfig()
	if err != nil {
		return nil, err
	}
	model := forecast.Model{
		Table:   forecast.NewWinTable(p.cfg.Model.Sigma),
		Weights: p.cfg.Model.Weights,
	}

	zap.S().Infow("pipeline: starting",
		"seed", seed,
		"as_of", asOf.Format(time.DateOnly),
		"chambers", len(p.cfg.Chambers),
		"national_points", len(inputs.National),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, rules := range p.cfg.Chambers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in, err := engine.NewChamberInput(rules, inputs.Ratios[rules.ID], inputs.Polls[rules.ID])
			if err != nil {
				return err
			}
			eng := &engine.Engine{
				Model:  model,
				Config: engineCfg,
				Rand:   simulate.NewRand(seed, uint64(i)),
			}
			report.Chambers[i] = p.runChamber(eng, in, inputs.National, asOf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.persist(run.ID, report); err != nil {
			return nil, err
		}
	}
	if opts.OutDir != "" {
		if err := WriteReport(opts.OutDir, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (p *Pipeline) engineConfig() (engine.Config, error) {
	start, end, err := p.cfg.History.Range()
	if err != nil {
		return engine.Config{}, err
	}
	m := p.cfg.Model
	return engine.Config{
		Trials:          m.Trials,
		Swing:           m.Swing,
		GridPoints:      m.GridPoints,
		PollWindow:      m.PollWindow,
		CompetitiveBand: m.CompetitiveBand,
		CheckpointDays:  m.CheckpointDays,
		Start:           start,
		End:             end,
	}, nil
}

func (p *Pipeline) runChamber(eng *engine.Engine, in engine.ChamberInput, national []models.NationalPoint, asOf time.Time) ChamberOutput {
	result := eng.Current(in, national, asOf)
	series := eng.Series(in, national)
	seats := compact.Encode(compact.DownsampleAll(series.Seats, p.cfg.Downsample))

	zap.S().Infow("pipeline: chamber complete",
		"chamber", in.Rules.ID,
		"control_probability", result.ControlProbability,
		"expected_seats", result.ExpectedSeats,
		"neutral_seats", result.NeutralSeats,
		"days", len(series.Points),
	)
	return ChamberOutput{
		Rules:   in.Rules,
		Result:  result,
		Series:  series.Points,
		Seats:   &seats,
		Tracked: len(series.Seats),
	}
}

func (p *Pipeline) persist(runID string, report *Report) error {
	for _, c := range report.Chambers {
		id := c.Rules.ID
		if err := p.store.SaveChamberResult(runID, c.Result); err != nil {
			return fmt.Errorf("save %s result: %w", id, err)
		}
		if err := p.store.SaveChamberSeries(runID, id, c.Series); err != nil {
			return fmt.Errorf("save %s series: %w", id, err)
		}
		if err := p.store.SaveCompactSeries(runID, id, c.Seats); err != nil {
			return fmt.Errorf("save %s seat series: %w", id, err)
		}
	}
	return nil
}

// WriteReport writes <chamber>.json for each chamber and summary.json with
// the current-day results only.
func WriteReport(dir string, report *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	summary := struct {
		RunID   string                 `json:"run_id,omitempty"`
		Seed    uint64                 `json:"seed"`
		AsOf    string                 `json:"as_of"`
		Results []models.ChamberResult `json:"results"`
	}{RunID: report.RunID, Seed: report.Seed, AsOf: report.AsOf.Format(time.DateOnly)}

	for _, c := range report.Chambers {
		if err := writeJSON(filepath.Join(dir, c.Rules.ID+".json"), c); err != nil {
			return err
		}
		summary.Results = append(summary.Results, c.Result)
	}
	return writeJSON(filepath.Join(dir, "summary.json"), summary)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
