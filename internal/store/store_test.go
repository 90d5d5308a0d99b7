package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/spirulinasite/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, zap.NewNop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	v, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("version = %d, want %d", v, len(migrations))
	}
}

func TestUpsertAndGetSite(t *testing.T) {
	store := setupTestStore(t)

	site := models.Site{SiteID: "pond-a", Name: "Pond A", Latitude: -12.5, Longitude: 130.8, Active: true}
	if err := store.UpsertSite(site); err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	if err := store.UpsertSite(models.Site{SiteID: "pond-b", Name: "Pond B"}); err != nil {
		t.Fatalf("UpsertSite inactive: %v", err)
	}

	sites, err := store.GetActiveSites()
	if err != nil {
		t.Fatalf("GetActiveSites: %v", err)
	}
	if diff := cmp.Diff([]models.Site{site}, sites); diff != "" {
		t.Errorf("GetActiveSites mismatch (-want +got):\n%s", diff)
	}

	site.Name = "Pond A (renamed)"
	if err := store.UpsertSite(site); err != nil {
		t.Fatalf("UpsertSite update: %v", err)
	}
	got, err := store.GetSite("pond-a")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got.Name != "Pond A (renamed)" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}

	if _, err := store.GetSite("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSite(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStoreRawPayload_Dedup(t *testing.T) {
	store := setupTestStore(t)

	body := []byte(`{"climate":{"temperature":30}}`)
	id1, err := store.StoreRawPayload(body)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	id2, err := store.StoreRawPayload(body)
	if err != nil {
		t.Fatalf("StoreRawPayload duplicate: %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate payload got new id %d, want %d", id2, id1)
	}

	got, err := store.GetRawPayload(id1)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("payload = %q, want %q", got, body)
	}
}

func newRun(id, siteID string, requestedAt time.Time) *AnalysisRun {
	run := &AnalysisRun{
		ID:          id,
		SiteID:      sql.NullString{String: siteID, Valid: siteID != ""},
		Location:    "Pond " + siteID,
		RequestedAt: requestedAt,
		CompletedAt: requestedAt.Add(3 * time.Second),
		HTTPStatus:  sql.NullInt64{Int64: 200, Valid: true},
		DurationMS:  sql.NullInt64{Int64: 3000, Valid: true},
		ProteinTier: "confidence_vector",
		KeyPoints:   []string{"Improve aeration"},
	}
	run.SetMetrics(&models.SiteMetrics{Temperature: 31, PH: 9.2, Radiation: 17, Salinity: 2.8})
	run.SetProtein(&models.ProteinPrediction{Level: models.ProteinMedium, Score: 50})
	return run
}

func TestInsertAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	run := newRun("run-1", "pond-a", now)
	body := []byte(`{"cultivation_status":"MARGINAL"}`)
	if err := store.InsertRun(run, body); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.RequestedAt.Equal(now) {
		t.Errorf("RequestedAt = %v, want %v", got.RequestedAt, now)
	}
	if diff := cmp.Diff(run.Metrics(), got.Metrics()); diff != "" {
		t.Errorf("Metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&models.ProteinPrediction{Level: models.ProteinMedium, Score: 50}, got.Protein()); diff != "" {
		t.Errorf("Protein mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Improve aeration"}, got.KeyPoints); diff != "" {
		t.Errorf("KeyPoints mismatch (-want +got):\n%s", diff)
	}

	payload, err := store.GetRunPayload("run-1")
	if err != nil {
		t.Fatalf("GetRunPayload: %v", err)
	}
	if string(payload) != string(body) {
		t.Errorf("payload = %q, want %q", payload, body)
	}

	if _, err := store.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) err = %v, want ErrNotFound", err)
	}
}

func TestInsertRun_AbsentValues(t *testing.T) {
	store := setupTestStore(t)

	run := &AnalysisRun{
		ID:          "run-empty",
		Location:    "Nowhere",
		RequestedAt: time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
		ProteinTier: "none",
	}
	if err := store.InsertRun(run, nil); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	got, err := store.GetRun("run-empty")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Metrics() != nil {
		t.Errorf("Metrics = %+v, want nil", got.Metrics())
	}
	if got.Protein() != nil {
		t.Errorf("Protein = %+v, want nil", got.Protein())
	}
	if got.KeyPoints == nil || len(got.KeyPoints) != 0 {
		t.Errorf("KeyPoints = %#v, want empty", got.KeyPoints)
	}
	if _, err := store.GetRunPayload("run-empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRunPayload err = %v, want ErrNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"r1", "r2", "r3"} {
		site := "pond-a"
		if id == "r3" {
			site = "pond-b"
		}
		if err := store.InsertRun(newRun(id, site, base.Add(time.Duration(i)*time.Minute)), nil); err != nil {
			t.Fatalf("InsertRun %s: %v", id, err)
		}
	}

	tests := []struct {
		name   string
		siteID string
		limit  int
		want   []string
	}{
		{"all newest first", "", 10, []string{"r3", "r2", "r1"}},
		{"by site", "pond-a", 10, []string{"r2", "r1"}},
		{"limited", "", 1, []string{"r3"}},
		{"unknown site", "pond-z", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(tt.siteID, tt.limit)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ListRuns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunStatsAndCleanup(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC()

	old := newRun("old", "pond-a", now.AddDate(0, 0, -100))
	if err := store.InsertRun(old, []byte(`{"old":true}`)); err != nil {
		t.Fatalf("InsertRun old: %v", err)
	}
	fresh := newRun("fresh", "pond-a", now)
	fresh.ProteinTier = "none"
	if err := store.InsertRun(fresh, []byte(`{"fresh":true}`)); err != nil {
		t.Fatalf("InsertRun fresh: %v", err)
	}

	stats, err := store.GetRunStats()
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}
	if stats.TotalRuns != 2 || stats.PayloadCount != 2 {
		t.Errorf("stats = %+v, want 2 runs and 2 payloads", stats)
	}
	if stats.CountByTier["none"] != 1 || stats.CountByTier["confidence_vector"] != 1 {
		t.Errorf("CountByTier = %v", stats.CountByTier)
	}
	if stats.OldestRequested.IsZero() || !stats.OldestRequested.Before(stats.NewestRequested) {
		t.Errorf("oldest %v should precede newest %v", stats.OldestRequested, stats.NewestRequested)
	}

	deleted, err := store.CleanupOldRuns(30)
	if err != nil {
		t.Fatalf("CleanupOldRuns: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	stats, err = store.GetRunStats()
	if err != nil {
		t.Fatalf("GetRunStats after cleanup: %v", err)
	}
	if stats.TotalRuns != 1 || stats.PayloadCount != 1 {
		t.Errorf("after cleanup stats = %+v, want 1 run and 1 payload", stats)
	}
	if _, err := store.GetRun("fresh"); err != nil {
		t.Errorf("fresh run should survive cleanup: %v", err)
	}
}
