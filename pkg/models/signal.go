package models

import "time"

// SignalAction represents the proposed trade direction
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// ExecutionType represents how an order should be placed
type ExecutionType string

const (
	ExecutionMarket ExecutionType = "MARKET"
	ExecutionLimit  ExecutionType = "LIMIT"
)

// TradingSignal represents an actionable trade derived from news analysis
type TradingSignal struct {
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	ID              string        `json:"id" db:"id"`
	Ticker          string        `json:"ticker" db:"ticker"`
	Action          SignalAction  `json:"action" db:"action"`
	ExecutionType   ExecutionType `json:"execution_type" db:"execution_type"`
	Urgency         Urgency       `json:"urgency" db:"urgency"`
	ArticleID       string        `json:"article_id" db:"article_id"`
	ClusterKey      string        `json:"cluster_key,omitempty" db:"cluster_key"`
	Reasons         []string      `json:"reasons" db:"reasons"`
	AffectedSectors []string      `json:"affected_sectors,omitempty" db:"affected_sectors"`
	Confidence      float64       `json:"confidence" db:"confidence"`
	PositionSize    float64       `json:"position_size" db:"position_size"` // fraction of portfolio
	AutoExecute     bool          `json:"auto_execute" db:"auto_execute"`
}

// Key identifies a signal for idempotent approval bookkeeping
func (s *TradingSignal) Key() string {
	return s.Ticker + "|" + string(s.Action) + "|" + s.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// DedupKey buckets the signal to the minute so near-simultaneous repeats
// for the same ticker collapse into one
func (s *TradingSignal) DedupKey() string {
	return s.Ticker + "|" + s.CreatedAt.UTC().Format("2006-01-02T15:04")
}
