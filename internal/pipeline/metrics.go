package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the pipeline
type Metrics struct {
	CyclesTotal       prometheus.Counter
	CycleErrors       prometheus.Counter
	CycleDuration     prometheus.Histogram
	ArticlesFetched   prometheus.Counter
	ArticlesAnalyzed  prometheus.Counter
	FallbackAnalyses  prometheus.Counter
	SignalsGenerated  prometheus.Counter
	SignalsApproved   prometheus.Counter
	SignalsRejected   *prometheus.CounterVec
	DuplicatesDropped prometheus.Counter
	LowQualityDropped prometheus.Counter
	TokensUsed        prometheus.Counter
	CostUSD           prometheus.Counter
	ActiveClusters    prometheus.Gauge
	ActiveShadows     prometheus.Gauge
}

// NewMetrics creates and registers pipeline metrics. A nil registerer
// keeps the metrics unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_cycles_total",
			Help: "Total number of pipeline cycles executed",
		}),

		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_cycle_errors_total",
			Help: "Total number of errors encountered across cycles",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeshield_cycle_duration_seconds",
			Help:    "Duration of one pipeline cycle in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		ArticlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_articles_fetched_total",
			Help: "Total number of unprocessed articles picked up",
		}),

		ArticlesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_articles_analyzed_total",
			Help: "Total number of articles successfully analyzed",
		}),

		FallbackAnalyses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_fallback_analyses_total",
			Help: "Total number of analyses produced by the keyword fallback parser",
		}),

		SignalsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_signals_generated_total",
			Help: "Total number of trading signals generated",
		}),

		SignalsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_signals_approved_total",
			Help: "Total number of signals that became constitutional proposals",
		}),

		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeshield_signals_rejected_total",
			Help: "Total number of vetoed signals by stage and gate",
		}, []string{"stage", "gate"}),

		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_duplicates_dropped_total",
			Help: "Total number of signals dropped by the dedup window",
		}),

		LowQualityDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_low_quality_dropped_total",
			Help: "Total number of signals dropped by the quality filter",
		}),

		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_llm_tokens_total",
			Help: "Total LLM tokens consumed by analyses",
		}),

		CostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeshield_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD",
		}),

		ActiveClusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeshield_active_clusters",
			Help: "Number of open news clusters",
		}),

		ActiveShadows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeshield_active_shadows",
			Help: "Number of shadow trades still tracking",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CyclesTotal,
			m.CycleErrors,
			m.CycleDuration,
			m.ArticlesFetched,
			m.ArticlesAnalyzed,
			m.FallbackAnalyses,
			m.SignalsGenerated,
			m.SignalsApproved,
			m.SignalsRejected,
			m.DuplicatesDropped,
			m.LowQualityDropped,
			m.TokensUsed,
			m.CostUSD,
			m.ActiveClusters,
			m.ActiveShadows,
		)
	}

	return m
}
