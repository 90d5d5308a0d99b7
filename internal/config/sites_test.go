package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/spirulinasite/internal/models"
)

func TestParseSites(t *testing.T) {
	data := []byte(`
sites:
  - id: pond-a
    name: Pond A
    latitude: -12.5
    longitude: 130.8
    active: true
  - id: pond-b
    name: Pond B
    latitude: 1
    longitude: 2
`)
	got, err := ParseSites(data)
	if err != nil {
		t.Fatalf("ParseSites: %v", err)
	}

	want := []models.Site{
		{SiteID: "pond-a", Name: "Pond A", Latitude: -12.5, Longitude: 130.8, Active: true},
		{SiteID: "pond-b", Name: "Pond B", Latitude: 1, Longitude: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSites() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSites_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "sites: []", "no sites"},
		{"missing id", "sites:\n  - name: X\n", "no id"},
		{"duplicate", "sites:\n  - id: a\n  - id: a\n", "duplicate"},
		{"bad latitude", "sites:\n  - id: a\n    latitude: 91\n", "out-of-range"},
		{"not yaml", "sites: [", "parse sites"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSites([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSites(t *testing.T) {
	got, err := LoadSites("")
	if err != nil {
		t.Fatalf("LoadSites default: %v", err)
	}
	if len(got) != len(DefaultSites) {
		t.Errorf("len = %d, want %d", len(got), len(DefaultSites))
	}

	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte("sites:\n  - id: x\n    name: X\n    active: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = LoadSites(path)
	if err != nil {
		t.Fatalf("LoadSites file: %v", err)
	}
	if len(got) != 1 || got[0].SiteID != "x" || !got[0].Active {
		t.Errorf("LoadSites = %+v", got)
	}

	if _, err := LoadSites(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
