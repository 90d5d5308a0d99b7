package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spirulinasite_analysis_api_calls_total",
			Help: "Total remote analysis service calls",
		},
		[]string{"site", "status"},
	)

	AnalysisAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spirulinasite_analysis_api_latency_seconds",
			Help:    "Remote analysis call latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"site"},
	)

	AnalysesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spirulinasite_analyses_completed_total",
			Help: "Analyses derived and archived, by outcome",
		},
		[]string{"outcome"}, // "applied", "stale", "network_error"
	)

	ProteinTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spirulinasite_protein_tier_total",
			Help: "Protein classifications by the tier that produced them",
		},
		[]string{"tier"},
	)

	MetricsAbsent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spirulinasite_metrics_absent_total",
			Help: "Analyses whose environmental metrics could not be fully resolved",
		},
	)
)
