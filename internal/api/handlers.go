package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lox/spirulinasite/internal/analysis"
	"github.com/lox/spirulinasite/internal/ingest"
	"github.com/lox/spirulinasite/internal/models"
	"github.com/lox/spirulinasite/internal/pipeline"
	"github.com/lox/spirulinasite/internal/report"
	"github.com/lox/spirulinasite/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	maxDeriveBody   = 8 << 20
)

type HealthStatus struct {
	Status      string     `json:"status"`
	ActiveSites int        `json:"active_sites"`
	TotalRuns   int        `json:"total_runs"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.GetActiveSites()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthStatus{Status: "error", Error: err.Error()})
		return
	}
	stats, err := s.store.GetRunStats()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthStatus{Status: "error", Error: err.Error()})
		return
	}

	health := HealthStatus{
		Status:      "ok",
		ActiveSites: len(sites),
		TotalRuns:   stats.TotalRuns,
	}
	if !stats.NewestRequested.IsZero() {
		health.LastRunAt = &stats.NewestRequested
	}
	if len(sites) == 0 {
		health.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.GetActiveSites()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}
	s.writeJSON(w, http.StatusOK, sites)
}

// AnalysisResponse is returned by the analyze and derive endpoints.
type AnalysisResponse struct {
	RunID  string          `json:"run_id"`
	SiteID string          `json:"site_id,omitempty"`
	Result analysis.Result `json:"result"`
	Report ReportView      `json:"report"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	site, err := s.store.GetSite(siteID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "unknown site "+siteID)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := s.runner.Run(r.Context(), *site)
	switch {
	case errors.Is(err, pipeline.ErrStale):
		s.writeError(w, http.StatusConflict, "superseded by a newer analysis of this site")
		return
	case errors.Is(err, ingest.ErrNetwork):
		s.logger.Warn("analysis failed", zap.String("site", siteID), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, ingest.UserMessage)
		return
	case err != nil:
		s.logger.Error("analysis failed", zap.String("site", siteID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, AnalysisResponse{
		RunID:  out.RunID,
		SiteID: siteID,
		Result: out.Result,
		Report: newReportView(out.Result.Location, report.FromResult(out.Result)),
	})
}

type deriveRequest struct {
	Location string          `json:"location"`
	Payload  json.RawMessage `json:"payload"`
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDeriveBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var req deriveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	out, err := s.runner.Derive(req.Location, req.Payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, AnalysisResponse{
		RunID:  out.RunID,
		Result: out.Result,
		Report: newReportView(out.Result.Location, report.FromResult(out.Result)),
	})
}

// RunView is the JSON form of an archived run.
type RunView struct {
	ID          string                    `json:"id"`
	SiteID      string                    `json:"site_id,omitempty"`
	Location    string                    `json:"location"`
	RequestedAt time.Time                 `json:"requested_at"`
	CompletedAt time.Time                 `json:"completed_at"`
	HTTPStatus  *int64                    `json:"http_status,omitempty"`
	DurationMS  *int64                    `json:"duration_ms,omitempty"`
	Metrics     *models.SiteMetrics       `json:"metrics"`
	Protein     *models.ProteinPrediction `json:"protein"`
	ProteinTier string                    `json:"protein_tier"`
	KeyPoints   []string                  `json:"key_points"`
	HasPayload  bool                      `json:"has_payload"`
}

func newRunView(run *store.AnalysisRun) RunView {
	v := RunView{
		ID:          run.ID,
		SiteID:      run.SiteID.String,
		Location:    run.Location,
		RequestedAt: run.RequestedAt,
		CompletedAt: run.CompletedAt,
		Metrics:     run.Metrics(),
		Protein:     run.Protein(),
		ProteinTier: run.ProteinTier,
		KeyPoints:   run.KeyPoints,
		HasPayload:  run.PayloadID.Valid,
	}
	if run.HTTPStatus.Valid {
		v.HTTPStatus = &run.HTTPStatus.Int64
	}
	if run.DurationMS.Valid {
		v.DurationMS = &run.DurationMS.Int64
	}
	if v.KeyPoints == nil {
		v.KeyPoints = []string{}
	}
	return v
}

func (s *Server) handleSiteRuns(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if _, err := s.store.GetSite(siteID); errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "unknown site "+siteID)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.store.ListRuns(siteID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]RunView, 0, len(runs))
	for i := range runs {
		views = append(views, newRunView(&runs[i]))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (*store.AnalysisRun, bool) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(runID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "unknown run "+runID)
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return run, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, newRunView(run))
}

// ReportView carries the assembled report for an external renderer.
type ReportView struct {
	Title    string         `json:"title"`
	Filename string         `json:"filename"`
	Blocks   []report.Block `json:"blocks"`
	Lines    []string       `json:"lines"`
}

func newReportView(location string, blocks []report.Block) ReportView {
	if blocks == nil {
		blocks = []report.Block{}
	}
	lines := report.Lines(blocks)
	if lines == nil {
		lines = []string{}
	}
	return ReportView{
		Title:    report.Title,
		Filename: report.Filename(location),
		Blocks:   blocks,
		Lines:    lines,
	}
}

// handleRunReport serves the report for an archived run. ?format=text
// returns it as plain text instead of JSON.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	blocks := report.Assemble(run.Location, run.Metrics(), run.Protein(), run.KeyPoints)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := (report.TextRenderer{}).Render(w, report.Title, blocks); err != nil {
			s.logger.Warn("render report", zap.String("run", run.ID), zap.Error(err))
		}
		return
	}
	s.writeJSON(w, http.StatusOK, newReportView(run.Location, blocks))
}
