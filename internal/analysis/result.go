package analysis

import "github.com/lox/spirulinasite/internal/models"

// Narrative field names seen across service versions.
var narrativePaths = []accessor{
	path("$.report"),
	path("$.llm_report"),
	path("$.narrative"),
	path("$.summary"),
}

// Result is the bundle derived from one analysis response. Each field is
// usable on its own; nil pointers mean the value could not be derived.
type Result struct {
	Location  string                    `json:"location"`
	Metrics   *models.SiteMetrics       `json:"metrics"`
	Protein   *models.ProteinPrediction `json:"protein"`
	Tier      Tier                      `json:"protein_tier"`
	Growth    models.GrowthSeries       `json:"growth"`
	KeyPoints []string                  `json:"key_points"`
	Narrative string                    `json:"narrative"`
}

// Derive runs every derivation over a payload. It never fails: missing or
// malformed fields degrade the affected value only.
func Derive(location string, payload any) Result {
	metrics := ResolveMetrics(payload)
	decision := DecideProtein(payload)
	narrative := Normalize(NarrativeText(payload))

	keyPoints := ExtractKeyPoints(narrative)
	if keyPoints == nil {
		keyPoints = []string{}
	}

	return Result{
		Location:  location,
		Metrics:   metrics,
		Protein:   decision.Prediction,
		Tier:      decision.Tier,
		Growth:    SynthesizeGrowth(metrics),
		KeyPoints: keyPoints,
		Narrative: narrative,
	}
}

// NarrativeText returns the free-text report in the payload, or "".
func NarrativeText(payload any) string {
	for _, doc := range []any{unwrap(payload), payload} {
		if v, ok := firstDefined(doc, narrativePaths); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
