package analysis

import (
	"math"
	"strings"

	"github.com/lox/spirulinasite/internal/models"
)

// Tier names the classification strategy that produced a prediction.
type Tier string

const (
	TierNone       Tier = "none"
	TierConfidence Tier = "confidence_vector"
	TierBiomass    Tier = "biomass_value"
	TierStatus     Tier = "cultivation_status"
)

// Decision records which tier fired and what it produced.
// Prediction is nil when Tier is TierNone.
type Decision struct {
	Tier       Tier                      `json:"tier"`
	Prediction *models.ProteinPrediction `json:"prediction,omitempty"`
}

const (
	minConfidenceLen = 3

	lowBiomassLimit  = 30
	highBiomassLimit = 70
	biomassScore     = 70
)

var (
	confidencePath    = []accessor{path("$.biomass_prediction.confidence")}
	biomassValuePath  = []accessor{path("$.biomass_prediction.biomass_prediction")}
	cultivationStatus = []accessor{path("$.cultivation_status")}
)

// confidenceBands maps argmax index to level; longer vectors clamp to the last band.
var confidenceBands = []models.ProteinLevel{models.ProteinLow, models.ProteinMedium, models.ProteinHigh}

var statusPredictions = map[string]models.ProteinPrediction{
	"INVALID":  {Level: models.ProteinLow, Score: 60},
	"MARGINAL": {Level: models.ProteinMedium, Score: 65},
	"VALID":    {Level: models.ProteinHigh, Score: 80},
}

type tier struct {
	name     Tier
	classify func(doc any) (models.ProteinPrediction, bool)
}

// tiers are tried in order; the first applicable one wins.
var tiers = []tier{
	{TierConfidence, fromConfidence},
	{TierBiomass, fromBiomassValue},
	{TierStatus, fromStatus},
}

// ClassifyProtein returns the protein band for a payload, or nil when no
// tier applies.
func ClassifyProtein(payload any) *models.ProteinPrediction {
	return DecideProtein(payload).Prediction
}

// DecideProtein is ClassifyProtein with the firing tier recorded.
func DecideProtein(payload any) Decision {
	doc := unwrap(payload)
	for _, t := range tiers {
		if p, ok := t.classify(doc); ok {
			return Decision{Tier: t.name, Prediction: &p}
		}
	}
	return Decision{Tier: TierNone}
}

func fromConfidence(doc any) (models.ProteinPrediction, bool) {
	raw, ok := firstDefined(doc, confidencePath)
	if !ok {
		return models.ProteinPrediction{}, false
	}
	values, ok := raw.([]any)
	if !ok || len(values) < minConfidenceLen {
		return models.ProteinPrediction{}, false
	}

	best := -1
	top := math.Inf(-1)
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if f > top {
			best, top = i, f
		}
	}
	if best < 0 {
		return models.ProteinPrediction{}, false
	}

	band := min(best, len(confidenceBands)-1)
	return models.ProteinPrediction{
		Level: confidenceBands[band],
		Score: clamp(roundTo(top*100, 1), 0, 100),
	}, true
}

func fromBiomassValue(doc any) (models.ProteinPrediction, bool) {
	raw, ok := firstDefined(doc, biomassValuePath)
	if !ok {
		return models.ProteinPrediction{}, false
	}
	v, ok := toFloat(raw)
	if !ok {
		return models.ProteinPrediction{}, false
	}

	level := models.ProteinHigh
	switch {
	case v < lowBiomassLimit:
		level = models.ProteinLow
	case v < highBiomassLimit:
		level = models.ProteinMedium
	}
	return models.ProteinPrediction{Level: level, Score: biomassScore}, true
}

func fromStatus(doc any) (models.ProteinPrediction, bool) {
	raw, ok := firstDefined(doc, cultivationStatus)
	if !ok {
		return models.ProteinPrediction{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return models.ProteinPrediction{}, false
	}
	p, ok := statusPredictions[strings.ToUpper(strings.TrimSpace(s))]
	return p, ok
}
