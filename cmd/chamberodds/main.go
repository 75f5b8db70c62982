package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/api"
	"github.com/lox/chamberodds/internal/config"
	"github.com/lox/chamberodds/internal/ingest"
	"github.com/lox/chamberodds/internal/logging"
	"github.com/lox/chamberodds/internal/pipeline"
	"github.com/lox/chamberodds/internal/store"
)

type Globals struct {
	Config  string `help:"Forecast config YAML merged over the built-in defaults." type:"path" env:"CHAMBERODDS_CONFIG"`
	DB      string `help:"Path to SQLite database." default:"data/chamberodds.db" env:"CHAMBERODDS_DB"`
	Verbose bool   `help:"Enable debug logging." short:"v"`
}

type CLI struct {
	Globals

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name='env-file',help='Load environment variables from this file.'"`

	Run        RunCmd        `cmd:"" help:"Forecast every chamber, persist the run and write JSON outputs."`
	FetchPolls FetchPollsCmd `cmd:"" name:"fetch-polls" help:"Download seat polls from a poll API into a CSV file."`
	Serve      ServeCmd      `cmd:"" help:"Serve the latest run over HTTP."`
}

type RunCmd struct {
	Data    string `help:"Input data directory." default:"data/inputs" type:"existingdir"`
	Out     string `help:"Directory for JSON outputs. Empty disables file output." default:"data/out"`
	AsOf    string `name:"as-of" help:"Current-day forecast date (YYYY-MM-DD). Defaults to today."`
	NoStore bool   `name:"no-store" help:"Skip the database and only write files."`
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}

	var asOf time.Time
	if c.AsOf != "" {
		if asOf, err = time.Parse(time.DateOnly, c.AsOf); err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
	}

	var st *store.Store
	if !c.NoStore {
		if st, err = openStore(g.DB); err != nil {
			return err
		}
		defer st.Close()
	}

	report, err := pipeline.New(cfg, st).Run(ctx, pipeline.Options{DataDir: c.Data, OutDir: c.Out, AsOf: asOf})
	if err != nil {
		return err
	}
	for _, ch := range report.Chambers {
		fmt.Printf("%-10s control %5.1f%%  expected seats %6.1f  neutral %d\n",
			ch.Rules.ID, ch.Result.ControlProbability*100, ch.Result.ExpectedSeats, ch.Result.NeutralSeats)
	}
	return nil
}

type FetchPollsCmd struct {
	APIURL string `name:"api-url" help:"Poll API base URL." required:"" env:"POLL_API_URL"`
	Start  string `help:"First poll date (YYYY-MM-DD). Defaults to the last day of the latest successful fetch."`
	End    string `help:"Last poll date (YYYY-MM-DD). Defaults to today."`
	Out    string `help:"CSV file to write." default:"data/inputs/polls.csv"`
}

// pollRange resolves the fetch window. Without --start it resumes from the
// end of the latest successful fetch, and resumed is true.
func (c *FetchPollsCmd) pollRange(st *store.Store, now time.Time) (start, end time.Time, resumed bool, err error) {
	end = now.UTC().Truncate(24 * time.Hour)
	if c.End != "" {
		if end, err = time.Parse(time.DateOnly, c.End); err != nil {
			return start, end, false, fmt.Errorf("--end: %w", err)
		}
	}

	if c.Start != "" {
		if start, err = time.Parse(time.DateOnly, c.Start); err != nil {
			return start, end, false, fmt.Errorf("--start: %w", err)
		}
	} else {
		last, err := st.LastSuccessfulPollFetch()
		if err != nil {
			return start, end, false, fmt.Errorf("last poll fetch: %w", err)
		}
		if last == nil {
			return start, end, false, fmt.Errorf("--start is required before the first successful fetch")
		}
		start, resumed = last.RangeEnd, true
	}

	if end.Before(start) {
		return start, end, false, fmt.Errorf("end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, resumed, nil
}

func (c *FetchPollsCmd) Run(ctx context.Context, g *Globals) error {
	st, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	start, end, resumed, err := c.pollRange(st, time.Now())
	if err != nil {
		return err
	}

	fetch, err := st.StartPollFetch(start, end)
	if err != nil {
		return fmt.Errorf("record poll fetch: %w", err)
	}

	rows, err := ingest.NewPollClient(c.APIURL).FetchPolls(ctx, start, end)
	fetched := len(rows)
	if err == nil && resumed {
		rows, err = mergeExisting(c.Out, rows, start)
	}
	if err == nil {
		err = writePollsFile(c.Out, rows)
	}
	if cerr := st.CompletePollFetch(fetch, fetched, err); cerr != nil {
		zap.S().Errorw("fetch-polls: complete audit row", "error", cerr)
	}
	if err != nil {
		return err
	}

	zap.S().Infow("fetch-polls: done",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"fetched", fetched,
		"written", len(rows),
		"out", c.Out,
	)
	return nil
}

// mergeExisting folds fetched rows into the polls file at path, replacing rows
// on or after from. A missing file leaves fetched unchanged.
func mergeExisting(path string, fetched []ingest.PollRow, from time.Time) ([]ingest.PollRow, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fetched, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	existing, err := ingest.ReadPollRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ingest.MergePollRows(existing, fetched, from), nil
}

func writePollsFile(path string, rows []ingest.PollRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ingest.WritePolls(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write polls: %w", err)
	}
	return f.Close()
}

type ServeCmd struct {
	Port    string        `help:"HTTP server port." default:"8080" env:"PORT"`
	Data    string        `help:"Input data directory for scheduled reruns. Empty disables them."`
	Refresh time.Duration `help:"Interval between scheduled reruns." default:"6h"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}

	st, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	if c.Data != "" && c.Refresh > 0 {
		go c.schedule(ctx, pipeline.New(cfg, st))
	} else {
		zap.S().Infow("serve: scheduled reruns disabled")
	}

	return api.NewServer(st, c.Port, cfg.Chambers).Run(ctx)
}

// schedule reruns the pipeline immediately and then every Refresh interval
// until ctx is done.
func (c *ServeCmd) schedule(ctx context.Context, p *pipeline.Pipeline) {
	runOnce := func() {
		if _, err := p.Run(ctx, pipeline.Options{DataDir: c.Data}); err != nil {
			zap.S().Errorw("serve: scheduled run failed", "error", err)
		}
	}

	runOnce()
	ticker := time.NewTicker(c.Refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	zap.S().Debugw("database ready", "path", path)
	return st, nil
}

func main() {
	var cli CLI
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Name("chamberodds"),
		kong.Description("Probabilistic forecasts of legislative chamber control."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	restore := logging.Install(logging.New(cli.Verbose))
	defer restore()

	err := kctx.Run(&cli.Globals)
	if err != nil {
		zap.S().Errorw("command failed", "command", kctx.Command(), "error", err)
		restore()
	}
	kctx.FatalIfErrorf(err)
}
