package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lox/spirulinasite/internal/models"
)

// AnalysisRun is the archived record of one completed analysis: when it ran,
// the raw payload it was derived from, and a summary of what was derived.
type AnalysisRun struct {
	ID           string
	SiteID       sql.NullString
	Location     string
	RequestedAt  time.Time
	CompletedAt  time.Time
	HTTPStatus   sql.NullInt64
	DurationMS   sql.NullInt64
	PayloadID    sql.NullInt64
	Temperature  sql.NullFloat64
	PH           sql.NullFloat64
	Radiation    sql.NullFloat64
	Salinity     sql.NullFloat64
	ProteinLevel sql.NullString
	ProteinScore sql.NullFloat64
	ProteinTier  string
	KeyPoints    []string
}

// SetMetrics records m, or clears the metric columns when m is nil.
func (r *AnalysisRun) SetMetrics(m *models.SiteMetrics) {
	if m == nil {
		r.Temperature, r.PH, r.Radiation, r.Salinity = sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}
		return
	}
	r.Temperature = sql.NullFloat64{Float64: m.Temperature, Valid: true}
	r.PH = sql.NullFloat64{Float64: m.PH, Valid: true}
	r.Radiation = sql.NullFloat64{Float64: m.Radiation, Valid: true}
	r.Salinity = sql.NullFloat64{Float64: m.Salinity, Valid: true}
}

// Metrics returns the archived metrics, or nil unless all four were stored.
func (r *AnalysisRun) Metrics() *models.SiteMetrics {
	if !r.Temperature.Valid || !r.PH.Valid || !r.Radiation.Valid || !r.Salinity.Valid {
		return nil
	}
	return &models.SiteMetrics{
		Temperature: r.Temperature.Float64,
		PH:          r.PH.Float64,
		Radiation:   r.Radiation.Float64,
		Salinity:    r.Salinity.Float64,
	}
}

func (r *AnalysisRun) SetProtein(p *models.ProteinPrediction) {
	if p == nil {
		r.ProteinLevel, r.ProteinScore = sql.NullString{}, sql.NullFloat64{}
		return
	}
	r.ProteinLevel = sql.NullString{String: p.Level.String(), Valid: true}
	r.ProteinScore = sql.NullFloat64{Float64: p.Score, Valid: true}
}

func (r *AnalysisRun) Protein() *models.ProteinPrediction {
	if !r.ProteinLevel.Valid || !r.ProteinScore.Valid {
		return nil
	}
	level, err := models.ParseProteinLevel(r.ProteinLevel.String)
	if err != nil {
		return nil
	}
	return &models.ProteinPrediction{Level: level, Score: r.ProteinScore.Float64}
}

// StoreRawPayload gzip-compresses and stores a response body, deduplicated
// by SHA-256. It returns the payload ID, existing or new.
func (s *Store) StoreRawPayload(payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	if _, err := s.db.Exec(`
		INSERT INTO raw_payloads (fetched_at, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), buf.Bytes(), hashHex, len(payload)); err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM raw_payloads WHERE payload_hash = ?`, hashHex).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup raw payload: %w", err)
	}
	return id, nil
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// InsertRun archives a run together with its raw response body. body may be
// nil for runs derived from a payload that was never fetched.
func (s *Store) InsertRun(run *AnalysisRun, body []byte) error {
	if body != nil {
		id, err := s.StoreRawPayload(body)
		if err != nil {
			return err
		}
		run.PayloadID = sql.NullInt64{Int64: id, Valid: true}
	}

	keyPoints := run.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	kp, err := json.Marshal(keyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO analysis_runs (id, site_id, location, requested_at, completed_at, http_status, duration_ms,
			payload_id, temperature, ph, radiation, salinity, protein_level, protein_score, protein_tier, key_points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.SiteID, run.Location, run.RequestedAt.UTC(), run.CompletedAt.UTC(), run.HTTPStatus, run.DurationMS,
		run.PayloadID, run.Temperature, run.PH, run.Radiation, run.Salinity, run.ProteinLevel, run.ProteinScore,
		run.ProteinTier, string(kp))
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

const runColumns = `id, site_id, location, requested_at, completed_at, http_status, duration_ms, payload_id,
	temperature, ph, radiation, salinity, protein_level, protein_score, protein_tier, key_points`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*AnalysisRun, error) {
	var r AnalysisRun
	var kp string
	if err := row.Scan(&r.ID, &r.SiteID, &r.Location, &r.RequestedAt, &r.CompletedAt, &r.HTTPStatus, &r.DurationMS,
		&r.PayloadID, &r.Temperature, &r.PH, &r.Radiation, &r.Salinity, &r.ProteinLevel, &r.ProteinScore,
		&r.ProteinTier, &kp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(kp), &r.KeyPoints); err != nil {
		return nil, fmt.Errorf("decode key points for run %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetRun returns ErrNotFound for unknown run IDs.
func (s *Store) GetRun(id string) (*AnalysisRun, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs first. An empty siteID lists runs
// for every site.
func (s *Store) ListRuns(siteID string, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if siteID == "" {
		rows, err = s.db.Query(`SELECT `+runColumns+` FROM analysis_runs ORDER BY requested_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+runColumns+` FROM analysis_runs WHERE site_id = ? ORDER BY requested_at DESC LIMIT ?`, siteID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunPayload returns the raw response body a run was derived from.
func (s *Store) GetRunPayload(id string) ([]byte, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if !run.PayloadID.Valid {
		return nil, ErrNotFound
	}
	return s.GetRawPayload(run.PayloadID.Int64)
}

// RunStats summarises the archive.
type RunStats struct {
	TotalRuns        int
	PayloadCount     int
	PayloadSizeBytes int64
	OldestRequested  time.Time
	NewestRequested  time.Time
	CountByTier      map[string]int
}

func (s *Store) GetRunStats() (*RunStats, error) {
	stats := &RunStats{CountByTier: make(map[string]int)}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow(`SELECT COUNT(*), MIN(requested_at), MAX(requested_at) FROM analysis_runs`).
		Scan(&stats.TotalRuns, &oldest, &newest); err != nil {
		return nil, err
	}
	stats.OldestRequested = parseTime(oldest)
	stats.NewestRequested = parseTime(newest)

	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0) FROM raw_payloads`).
		Scan(&stats.PayloadCount, &stats.PayloadSizeBytes); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT protein_tier, COUNT(*) FROM analysis_runs GROUP BY protein_tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		stats.CountByTier[tier] = count
	}
	return stats, rows.Err()
}

// CleanupOldRuns deletes runs older than retentionDays and any payloads no
// longer referenced. Returns the number of deleted runs.
func (s *Store) CleanupOldRuns(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	result, err := s.db.Exec(`DELETE FROM analysis_runs WHERE requested_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := s.db.Exec(`
		DELETE FROM raw_payloads
		WHERE id NOT IN (SELECT payload_id FROM analysis_runs WHERE payload_id IS NOT NULL)
	`); err != nil {
		return n, fmt.Errorf("delete orphaned payloads: %w", err)
	}
	return n, nil
}

// parseTime reads aggregate time columns, which the driver returns as text.
func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
