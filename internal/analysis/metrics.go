package analysis

import "github.com/lox/spirulinasite/internal/models"

// Key paths per metric in priority order. Older backends used the NASA POWER
// parameter names (T2M, ALLSKY_SFC_SW_DWN) directly.
var (
	temperaturePaths = []accessor{
		path("$.climate.temperature"),
		path("$.climate.avg_temperature"),
		path("$.climate.T2M"),
	}
	radiationPaths = []accessor{
		path("$.climate.solar_radiation"),
		path("$.climate.radiation"),
		path("$.climate.ALLSKY_SFC_SW_DWN"),
	}
	phPaths = []accessor{
		path("$.water_profile.initial_pH"),
		path("$.water_profile.ph"),
		path("$.water_profile.pH"),
	}
	salinityPaths = []accessor{
		path("$.water_profile.salinity"),
		path("$.water_profile.SALINITY"),
	}
)

// ResolveMetrics extracts the four environmental readings from an analysis
// payload. It returns nil unless every reading resolves to a finite number.
func ResolveMetrics(payload any) *models.SiteMetrics {
	doc := unwrap(payload)

	var m models.SiteMetrics
	fields := []struct {
		dst   *float64
		paths []accessor
	}{
		{&m.Temperature, temperaturePaths},
		{&m.PH, phPaths},
		{&m.Radiation, radiationPaths},
		{&m.Salinity, salinityPaths},
	}

	for _, f := range fields {
		raw, ok := firstDefined(doc, f.paths)
		if !ok {
			return nil
		}
		v, ok := toFloat(raw)
		if !ok {
			return nil
		}
		*f.dst = v
	}
	return &m
}
