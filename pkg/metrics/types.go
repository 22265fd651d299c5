package metrics

import "time"

// Warehouse rows shared between the pipeline and the ClickHouse sink

// AnalysisAudit records one analyzed article for cost and quality review
type AnalysisAudit struct {
	Timestamp      time.Time
	ArticleID      string
	Source         string
	SourceTier     string
	Provider       string
	Model          string
	Sentiment      string
	Urgency        string
	ClusterKey     string
	SentimentScore float64
	Confidence     float64
	Impact         float64
	Multiplier     float64
	CostUSD        float64
	TokensUsed     int
	FallbackUsed   bool
}

func (r *AnalysisAudit) Table() string {
	return "analysis_audit"
}

func (r *AnalysisAudit) Values() []interface{} {
	return []interface{}{
		r.Timestamp,
		r.ArticleID,
		r.Source,
		r.SourceTier,
		r.Provider,
		r.Model,
		r.Sentiment,
		r.Urgency,
		r.ClusterKey,
		r.SentimentScore,
		r.Confidence,
		r.Impact,
		r.Multiplier,
		r.CostUSD,
		r.TokensUsed,
		r.FallbackUsed,
	}
}

// CycleStats records one pipeline cycle summary
type CycleStats struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	CycleID          string
	ArticlesFetched  int
	Duplicates       int
	LowQuality       int
	Analyzed         int
	FallbackAnalyses int
	SignalsGenerated int
	SignalsApproved  int
	SignalsRejected  int
	TokensUsed       int
	CostUSD          float64
	Errors           int
}

func (r *CycleStats) Table() string {
	return "pipeline_cycles"
}

func (r *CycleStats) Values() []interface{} {
	return []interface{}{
		r.StartedAt,
		r.FinishedAt,
		r.CycleID,
		r.ArticlesFetched,
		r.Duplicates,
		r.LowQuality,
		r.Analyzed,
		r.FallbackAnalyses,
		r.SignalsGenerated,
		r.SignalsApproved,
		r.SignalsRejected,
		r.TokensUsed,
		r.CostUSD,
		r.Errors,
	}
}

// ShadowMark records one shadow trade mark-to-market observation
type ShadowMark struct {
	Timestamp     time.Time
	ShadowID      string
	Ticker        string
	Action        string
	EntryPrice    float64
	CurrentPrice  float64
	VirtualPnL    float64
	VirtualPnLPct float64
	DefensiveWin  bool
	Closed        bool
}

func (r *ShadowMark) Table() string {
	return "shadow_marks"
}

func (r *ShadowMark) Values() []interface{} {
	return []interface{}{
		r.Timestamp,
		r.ShadowID,
		r.Ticker,
		r.Action,
		r.EntryPrice,
		r.CurrentPrice,
		r.VirtualPnL,
		r.VirtualPnLPct,
		r.DefensiveWin,
		r.Closed,
	}
}
