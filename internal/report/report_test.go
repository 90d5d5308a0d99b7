package report

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/spirulinasite/internal/analysis"
	"github.com/lox/spirulinasite/internal/models"
)

func TestAssemble_AllSections(t *testing.T) {
	metrics := &models.SiteMetrics{Temperature: 31.456, PH: 9, Radiation: 17.2, Salinity: 2.5}
	protein := &models.ProteinPrediction{Level: models.ProteinHigh, Score: 90}

	got := Assemble("Lake Texcoco", metrics, protein, []string{"Improve aeration", "Shade at midday"})

	want := []Block{
		{Heading: SectionLocation, Lines: []string{"Location: Lake Texcoco"}},
		{Heading: SectionEnvironment, Lines: []string{
			"Temperature: 31.46 °C",
			"pH: 9.00",
			"Solar radiation: 17.20 MJ/m²/day",
			"Salinity: 2.50 %",
		}},
		{Heading: SectionProtein, Lines: []string{
			"Band: High",
			"Score: 90.0",
			"Suggested use: Suitable for medicinal and pharmaceutical-grade products.",
		}},
		{Heading: SectionRecommendations, Lines: []string{"• Improve aeration", "• Shade at midday"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_SkipsAbsentSections(t *testing.T) {
	tests := []struct {
		name     string
		location string
		metrics  *models.SiteMetrics
		protein  *models.ProteinPrediction
		points   []string
		want     []string
	}{
		{
			name: "nothing",
			want: nil,
		},
		{
			name:     "location only",
			location: "Somewhere",
			want:     []string{SectionLocation},
		},
		{
			name:    "protein and points",
			protein: &models.ProteinPrediction{Level: models.ProteinLow, Score: 60},
			points:  []string{"Check pumps"},
			want:    []string{SectionProtein, SectionRecommendations},
		},
		{
			name:     "metrics without protein",
			location: "Pond 4",
			metrics:  &models.IdealMetrics,
			want:     []string{SectionLocation, SectionEnvironment},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, b := range Assemble(tt.location, tt.metrics, tt.protein, tt.points) {
				got = append(got, b.Heading)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("headings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUseCase(t *testing.T) {
	tests := []struct {
		level models.ProteinLevel
		want  string
	}{
		{models.ProteinLow, "animal feed"},
		{models.ProteinMedium, "nutraceutical"},
		{models.ProteinHigh, "pharmaceutical"},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := UseCase(tt.level); !strings.Contains(got, tt.want) {
				t.Errorf("UseCase(%v) = %q, want it to mention %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"Lake Chad", "spirulina_site_report_Lake_Chad.pdf"},
		{"pond-7_north", "spirulina_site_report_pond-7_north.pdf"},
		{"São Paulo, BR", "spirulina_site_report_S_o_Paulo__BR.pdf"},
		{"", "spirulina_site_report_site.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			if got := Filename(tt.location); got != tt.want {
				t.Errorf("Filename(%q) = %q, want %q", tt.location, got, tt.want)
			}
		})
	}
}

func TestLinesAndTextRenderer(t *testing.T) {
	r := analysis.Derive("Pond 1", map[string]any{"cultivation_status": "MARGINAL"})
	blocks := FromResult(r)

	want := []string{
		SectionLocation,
		"Location: Pond 1",
		"",
		SectionProtein,
		"Band: Medium",
		"Score: 65.0",
		"Suggested use: Suitable for human food and nutraceutical products.",
	}
	if diff := cmp.Diff(want, Lines(blocks)); diff != "" {
		t.Errorf("Lines() mismatch (-want +got):\n%s", diff)
	}

	var b strings.Builder
	if err := (TextRenderer{}).Render(&b, Title, blocks); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := b.String()
	if !strings.HasPrefix(out, Title+"\n") {
		t.Errorf("missing title, got %q", out)
	}
	if !strings.Contains(out, "Band: Medium\n") {
		t.Errorf("missing protein band, got %q", out)
	}
}
