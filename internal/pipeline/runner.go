package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/spirulinasite/internal/analysis"
	"github.com/lox/spirulinasite/internal/ingest"
	"github.com/lox/spirulinasite/internal/metrics"
	"github.com/lox/spirulinasite/internal/models"
	"github.com/lox/spirulinasite/internal/session"
	"github.com/lox/spirulinasite/internal/store"
)

// ErrStale is returned when a newer analysis for the same site started while
// this one was in flight. Its result is discarded.
var ErrStale = errors.New("analysis superseded by a newer request")

// Analyzer performs the remote round trip.
type Analyzer interface {
	Analyze(ctx context.Context, siteID string, req ingest.Request) (*ingest.Response, error)
}

// Outcome is what one analysis produced.
type Outcome struct {
	RunID  string
	Site   models.Site
	Result analysis.Result
}

type Runner struct {
	analyzer Analyzer
	store    *store.Store
	tracker  *session.Tracker
	logger   *zap.Logger
	now      func() time.Time
}

func NewRunner(analyzer Analyzer, st *store.Store, tracker *session.Tracker, logger *zap.Logger) *Runner {
	return &Runner{
		analyzer: analyzer,
		store:    st,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
	}
}

// Run analyses one site. A network failure returns an error wrapping
// ingest.ErrNetwork and derives nothing. A result that arrives after a newer
// Run for the same site began returns ErrStale.
func (r *Runner) Run(ctx context.Context, site models.Site) (*Outcome, error) {
	ctx, ticket := r.tracker.Begin(ctx, site.SiteID)
	defer r.tracker.Finish(ticket)

	requestedAt := r.now()
	resp, err := r.analyzer.Analyze(ctx, site.SiteID, ingest.Request{
		Location:  site.Name,
		Latitude:  site.Latitude,
		Longitude: site.Longitude,
	})
	if !r.tracker.Current(ticket) {
		metrics.AnalysesCompleted.WithLabelValues("stale").Inc()
		r.logger.Info("discarding stale analysis", zap.String("site", site.SiteID), zap.Uint64("generation", ticket.Generation))
		return nil, ErrStale
	}
	if err != nil {
		metrics.AnalysesCompleted.WithLabelValues("network_error").Inc()
		return nil, fmt.Errorf("analyze %s: %w", site.SiteID, err)
	}

	result := analysis.Derive(site.Name, resp.Payload)
	observe(result)

	run := newRunRecord(result, requestedAt, r.now())
	run.SiteID = sql.NullString{String: site.SiteID, Valid: true}
	run.HTTPStatus = sql.NullInt64{Int64: int64(resp.HTTPStatus), Valid: resp.HTTPStatus > 0}
	run.DurationMS = sql.NullInt64{Int64: resp.Duration.Milliseconds(), Valid: true}
	if err := r.store.InsertRun(run, resp.Body); err != nil {
		return nil, fmt.Errorf("archive run: %w", err)
	}

	metrics.AnalysesCompleted.WithLabelValues("applied").Inc()
	r.logger.Info("analysis complete",
		zap.String("site", site.SiteID),
		zap.String("run", run.ID),
		zap.Bool("metrics", result.Metrics != nil),
		zap.String("protein_tier", string(result.Tier)),
		zap.Int("key_points", len(result.KeyPoints)))

	return &Outcome{RunID: run.ID, Site: site, Result: result}, nil
}

// BatchResult pairs a site with its outcome or error.
type BatchResult struct {
	Site    models.Site
	Outcome *Outcome
	Err     error
}

// RunBatch analyses several sites concurrently. Each site is an independent
// invocation; one failure does not stop the others.
func (r *Runner) RunBatch(ctx context.Context, sites []models.Site, concurrency int) []BatchResult {
	results := make([]BatchResult, len(sites))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, site := range sites {
		g.Go(func() error {
			out, err := r.Run(ctx, site)
			results[i] = BatchResult{Site: site, Outcome: out, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

// Derive runs the derivation over a payload supplied directly, without a
// remote call, and archives it.
func (r *Runner) Derive(location string, body []byte) (*Outcome, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	now := r.now()
	result := analysis.Derive(location, payload)
	observe(result)

	run := newRunRecord(result, now, now)
	if err := r.store.InsertRun(run, body); err != nil {
		return nil, fmt.Errorf("archive run: %w", err)
	}
	return &Outcome{RunID: run.ID, Result: result}, nil
}

// Reprocess re-derives an archived run from its stored raw payload. Nothing
// is written; the archived summary is left as it was.
func (r *Runner) Reprocess(runID string) (*analysis.Result, error) {
	run, err := r.store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	body, err := r.store.GetRunPayload(runID)
	if err != nil {
		return nil, fmt.Errorf("get payload for run %s: %w", runID, err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload for run %s: %w", runID, err)
	}
	result := analysis.Derive(run.Location, payload)
	return &result, nil
}

func newRunRecord(result analysis.Result, requestedAt, completedAt time.Time) *store.AnalysisRun {
	run := &store.AnalysisRun{
		ID:          uuid.NewString(),
		Location:    result.Location,
		RequestedAt: requestedAt,
		CompletedAt: completedAt,
		ProteinTier: string(result.Tier),
		KeyPoints:   result.KeyPoints,
	}
	run.SetMetrics(result.Metrics)
	run.SetProtein(result.Protein)
	return run
}

func observe(result analysis.Result) {
	metrics.ProteinTier.WithLabelValues(string(result.Tier)).Inc()
	if result.Metrics == nil {
		metrics.MetricsAbsent.Inc()
	}
}
