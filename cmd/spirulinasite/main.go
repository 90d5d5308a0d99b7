package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/spirulinasite/internal/analysis"
	"github.com/lox/spirulinasite/internal/api"
	"github.com/lox/spirulinasite/internal/config"
	"github.com/lox/spirulinasite/internal/ingest"
	"github.com/lox/spirulinasite/internal/logging"
	"github.com/lox/spirulinasite/internal/models"
	"github.com/lox/spirulinasite/internal/pipeline"
	"github.com/lox/spirulinasite/internal/report"
	"github.com/lox/spirulinasite/internal/session"
	"github.com/lox/spirulinasite/internal/store"
)

type Globals struct {
	DB       string        `help:"Path to SQLite database." default:"data/spirulinasite.db" env:"SPIRULINA_DB"`
	Endpoint string        `help:"Remote analysis endpoint URL." env:"ANALYSIS_ENDPOINT"`
	Timeout  time.Duration `help:"Timeout for one analysis round trip." default:"60s" env:"ANALYSIS_TIMEOUT"`
	Sites    string        `help:"YAML site catalogue; built-in sites when empty." env:"SPIRULINA_SITES"`
	Debug    bool          `help:"Enable debug logging."`
}

type CLI struct {
	Globals

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`

	Serve     ServeCmd     `cmd:"" help:"Run the HTTP API."`
	Analyze   AnalyzeCmd   `cmd:"" help:"Analyse sites against the remote service and print their reports."`
	Derive    DeriveCmd    `cmd:"" help:"Derive a report from a saved analysis payload."`
	Reprocess ReprocessCmd `cmd:"" help:"Re-derive an archived run from its stored payload."`
	Runs      RunsCmd      `cmd:"" help:"List archived runs."`
	Cleanup   CleanupCmd   `cmd:"" help:"Delete archived runs older than the retention period."`
}

// app holds what every command needs once the database is open.
type app struct {
	logger *zap.Logger
	db     *sql.DB
	store  *store.Store
	runner *pipeline.Runner
}

func (g *Globals) open() (*app, error) {
	logger, err := logging.New(g.Debug)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(g.DB)
	if err != nil {
		return nil, err
	}

	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sites, err := config.LoadSites(g.Sites)
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, site := range sites {
		if err := st.UpsertSite(site); err != nil {
			db.Close()
			return nil, fmt.Errorf("upsert site %s: %w", site.SiteID, err)
		}
	}
	logger.Debug("sites seeded", zap.Int("count", len(sites)))

	client := ingest.NewClient(g.Endpoint, g.Timeout, logger)
	runner := pipeline.NewRunner(client, st, session.NewTracker(), logger)

	return &app{logger: logger, db: db, store: st, runner: runner}, nil
}

func (a *app) Close() {
	a.logger.Sync()
	a.db.Close()
}

func (g *Globals) requireEndpoint() error {
	if g.Endpoint == "" {
		return errors.New("--endpoint or ANALYSIS_ENDPOINT is required")
	}
	return nil
}

type ServeCmd struct {
	Port          string `help:"HTTP server port." default:"8080" env:"PORT"`
	RetentionDays int    `help:"Delete archived runs older than this many days, checked daily. Zero keeps everything." default:"0"`
}

func (c *ServeCmd) Run(g *Globals) error {
	if err := g.requireEndpoint(); err != nil {
		return err
	}
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.RetentionDays > 0 {
		go a.cleanupLoop(ctx, c.RetentionDays)
	}

	server := api.NewServer(a.store, a.runner, c.Port, a.logger)
	return server.Run(ctx)
}

func (a *app) cleanupLoop(ctx context.Context, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := a.store.CleanupOldRuns(days); err != nil {
			a.logger.Error("cleanup old runs", zap.Error(err))
		} else if n > 0 {
			a.logger.Info("cleaned up old runs", zap.Int64("deleted", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type AnalyzeCmd struct {
	SiteIDs     []string `arg:"" optional:"" name:"site-id" help:"Sites to analyse; all active sites when omitted."`
	Concurrency int      `help:"Maximum concurrent analyses." default:"4"`
}

func (c *AnalyzeCmd) Run(g *Globals) error {
	if err := g.requireEndpoint(); err != nil {
		return err
	}
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	var sites []models.Site
	if len(c.SiteIDs) == 0 {
		if sites, err = a.store.GetActiveSites(); err != nil {
			return fmt.Errorf("get active sites: %w", err)
		}
	}
	for _, id := range c.SiteIDs {
		site, err := a.store.GetSite(id)
		if err != nil {
			return fmt.Errorf("get site %s: %w", id, err)
		}
		sites = append(sites, *site)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var failed int
	for _, res := range a.runner.RunBatch(ctx, sites, c.Concurrency) {
		switch {
		case errors.Is(res.Err, ingest.ErrNetwork):
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s\n", res.Site.SiteID, ingest.UserMessage)
			a.logger.Debug("analysis failed", zap.String("site", res.Site.SiteID), zap.Error(res.Err))
		case res.Err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Site.SiteID, res.Err)
		default:
			if err := printResult(res.Outcome.RunID, res.Outcome.Result); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(sites))
	}
	return nil
}

type DeriveCmd struct {
	Payload  string `arg:"" type:"existingfile" help:"JSON file holding an analysis response."`
	Location string `help:"Location label for the report."`
}

func (c *DeriveCmd) Run(g *Globals) error {
	body, err := os.ReadFile(c.Payload)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.runner.Derive(c.Location, body)
	if err != nil {
		return err
	}
	return printResult(out.RunID, out.Result)
}

type ReprocessCmd struct {
	RunID string `arg:"" help:"Archived run to re-derive."`
}

func (c *ReprocessCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.runner.Reprocess(c.RunID)
	if err != nil {
		return err
	}
	return printResult(c.RunID, *result)
}

type RunsCmd struct {
	Site  string `help:"Only list runs for this site."`
	Limit int    `help:"Maximum runs to list." default:"20"`
}

func (c *RunsCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListRuns(c.Site, c.Limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSITE\tREQUESTED\tTIER\tPROTEIN\tLOCATION")
	for _, r := range runs {
		protein := "-"
		if p := r.Protein(); p != nil {
			protein = fmt.Sprintf("%s (%.1f)", p.Level, p.Score)
		}
		site := r.SiteID.String
		if site == "" {
			site = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, site, r.RequestedAt.Local().Format(time.DateTime), r.ProteinTier, protein, r.Location)
	}
	return tw.Flush()
}

type CleanupCmd struct {
	Days int `help:"Retention period in days." default:"90"`
}

func (c *CleanupCmd) Run(g *Globals) error {
	if c.Days <= 0 {
		return errors.New("--days must be positive")
	}
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.CleanupOldRuns(c.Days)
	if err != nil {
		return err
	}
	stats, err := a.store.GetRunStats()
	if err != nil {
		return fmt.Errorf("get run stats: %w", err)
	}
	fmt.Printf("deleted %d runs; %d runs and %d payloads (%d bytes) remain\n",
		n, stats.TotalRuns, stats.PayloadCount, stats.PayloadSizeBytes)
	return nil
}

func printResult(runID string, result analysis.Result) error {
	if err := (report.TextRenderer{}).Render(os.Stdout, report.Title, report.FromResult(result)); err != nil {
		return err
	}
	fmt.Printf("\nrun %s, protein tier %s, export as %s\n\n", runID, result.Tier, report.Filename(result.Location))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("spirulinasite"),
		kong.Description("Spirulina cultivation site analysis."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
