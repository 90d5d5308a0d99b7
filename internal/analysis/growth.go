package analysis

import (
	"math"

	"github.com/lox/spirulinasite/internal/models"
)

const (
	baseDoublingTime = 1.8
	minDoublingTime  = 1.2
	maxDoublingTime  = 3.5

	temperaturePenalty = 0.03 // per °C away from ideal
	radiationPenalty   = 0.02 // per MJ/m²/day away from ideal
)

// defaultGrowth is shown when no metrics could be resolved.
var defaultGrowth = func() models.GrowthSeries {
	series := make(models.GrowthSeries, models.GrowthDays)
	for i := range series {
		series[i] = models.GrowthPoint{
			Day:          i + 1,
			DoublingTime: 2.1 + math.Sin(float64(i)/2)*0.25,
		}
	}
	return series
}()

// SynthesizeGrowth derives a 14-day doubling-time series from site metrics.
// Doubling time grows with distance from the ideal temperature and radiation
// and is bounded to [1.2, 3.5] days.
func SynthesizeGrowth(m *models.SiteMetrics) models.GrowthSeries {
	if m == nil {
		return append(models.GrowthSeries(nil), defaultGrowth...)
	}

	ideal := models.IdealMetrics
	penalty := math.Abs(m.Temperature-ideal.Temperature)*temperaturePenalty +
		math.Abs(m.Radiation-ideal.Radiation)*radiationPenalty
	base := clamp(baseDoublingTime+penalty, minDoublingTime, maxDoublingTime)

	series := make(models.GrowthSeries, models.GrowthDays)
	for i := range series {
		day := i + 1
		series[i] = models.GrowthPoint{
			Day:          day,
			DoublingTime: roundTo(base+math.Sin(float64(day)/2.5)*0.1, 2),
		}
	}
	return series
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
