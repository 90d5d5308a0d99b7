// Package report turns derived analysis values into labelled, pre-formatted
// text blocks. Layout, wrapping and pagination belong to the renderer.
package report

import (
	"fmt"
	"io"
	"regexp"

	"github.com/lox/spirulinasite/internal/analysis"
	"github.com/lox/spirulinasite/internal/models"
)

const (
	Title = "Spirulina Site Report"

	SectionLocation        = "Location"
	SectionEnvironment     = "Environmental snapshot"
	SectionProtein         = "Protein content band"
	SectionRecommendations = "Key technical recommendations"

	Bullet = "• "

	filenamePrefix = "spirulina_site_report_"
	fallbackLabel  = "site"
)

// Block is one labelled group of lines.
type Block struct {
	Heading string   `json:"heading"`
	Lines   []string `json:"lines"`
}

// Renderer lays blocks out into a document, e.g. a PDF.
type Renderer interface {
	Render(w io.Writer, title string, blocks []Block) error
}

// Assemble builds the report blocks in fixed order, skipping sections whose
// data is absent.
func Assemble(location string, metrics *models.SiteMetrics, protein *models.ProteinPrediction, keyPoints []string) []Block {
	var blocks []Block

	if location != "" {
		blocks = append(blocks, Block{
			Heading: SectionLocation,
			Lines:   []string{"Location: " + location},
		})
	}

	if metrics != nil {
		blocks = append(blocks, Block{
			Heading: SectionEnvironment,
			Lines: []string{
				fmt.Sprintf("Temperature: %.2f °C", metrics.Temperature),
				fmt.Sprintf("pH: %.2f", metrics.PH),
				fmt.Sprintf("Solar radiation: %.2f MJ/m²/day", metrics.Radiation),
				fmt.Sprintf("Salinity: %.2f %%", metrics.Salinity),
			},
		})
	}

	if protein != nil {
		blocks = append(blocks, Block{
			Heading: SectionProtein,
			Lines: []string{
				"Band: " + protein.Level.String(),
				fmt.Sprintf("Score: %.1f", protein.Score),
				"Suggested use: " + UseCase(protein.Level),
			},
		})
	}

	if len(keyPoints) > 0 {
		lines := make([]string, len(keyPoints))
		for i, p := range keyPoints {
			lines[i] = Bullet + p
		}
		blocks = append(blocks, Block{Heading: SectionRecommendations, Lines: lines})
	}

	return blocks
}

// FromResult assembles the report for a derived analysis bundle.
func FromResult(r analysis.Result) []Block {
	return Assemble(r.Location, r.Metrics, r.Protein, r.KeyPoints)
}

// UseCase describes what biomass of the given protein band is suited for.
func UseCase(level models.ProteinLevel) string {
	switch level {
	case models.ProteinLow:
		return "Best suited for animal feed."
	case models.ProteinMedium:
		return "Suitable for human food and nutraceutical products."
	case models.ProteinHigh:
		return "Suitable for medicinal and pharmaceutical-grade products."
	default:
		return ""
	}
}

// Lines flattens blocks into logical lines: a heading followed by its lines,
// with a blank line between blocks.
func Lines(blocks []Block) []string {
	var out []string
	for i, b := range blocks {
		if i > 0 {
			out = append(out, "")
		}
		out = append(out, b.Heading)
		out = append(out, b.Lines...)
	}
	return out
}

var unsafeLabelChars = regexp.MustCompile(`[^\w-]`)

// SanitizeLabel replaces every character other than letters, digits,
// underscore and hyphen with an underscore.
func SanitizeLabel(label string) string {
	s := unsafeLabelChars.ReplaceAllString(label, "_")
	if s == "" {
		return fallbackLabel
	}
	return s
}

// Filename returns the export file name for a report about location.
func Filename(location string) string {
	return filenamePrefix + SanitizeLabel(location) + ".pdf"
}
