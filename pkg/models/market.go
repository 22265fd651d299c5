package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketRegime represents the prevailing risk environment
type MarketRegime string

const (
	RegimeRiskOn  MarketRegime = "risk_on"
	RegimeNeutral MarketRegime = "neutral"
	RegimeRiskOff MarketRegime = "risk_off"
)

// MarketContext is the per-cycle market snapshot consumed by the rule engine
type MarketContext struct {
	AsOf              time.Time          `json:"as_of"`
	InceptionDate     time.Time          `json:"inception_date,omitempty"`
	CurrentAllocation map[string]float64 `json:"current_allocation"` // asset class -> fraction
	Regime            MarketRegime       `json:"market_regime"`
	TotalCapital      decimal.Decimal    `json:"total_capital"`
	DailyVolumeUSD    decimal.Decimal    `json:"daily_volume_usd"`
	VIX               float64            `json:"vix"`
	DailyLossPct      float64            `json:"daily_loss_pct"`
	DrawdownPct       float64            `json:"drawdown_pct"`
	DailyTrades       int                `json:"daily_trades"`
	WeeklyTrades      int                `json:"weekly_trades"`
	TotalTrades       int                `json:"total_trades"` // since inception
}

// StockRatio returns the equity share of the current allocation
func (m *MarketContext) StockRatio() float64 {
	return m.CurrentAllocation["stock"]
}

// CashRatio returns the cash share of the current allocation
func (m *MarketContext) CashRatio() float64 {
	return m.CurrentAllocation["cash"]
}

// Quote represents a current market price for one ticker
type Quote struct {
	Timestamp time.Time       `json:"timestamp"`
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceBar represents one OHLCV bar of price history
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// InstitutionalHolder represents one 13F holder position
type InstitutionalHolder struct {
	ReportedAt time.Time       `json:"reported_at"`
	Name       string          `json:"name"`
	Shares     int64           `json:"shares"`
	Value      decimal.Decimal `json:"value"`
	ChangePct  float64         `json:"change_pct"`
}

// InsiderTrade represents one insider filing
type InsiderTrade struct {
	FiledAt time.Time       `json:"filed_at"`
	Insider string          `json:"insider"`
	Title   string          `json:"title"`
	Action  SignalAction    `json:"action"`
	Price   decimal.Decimal `json:"price"`
	Shares  int64           `json:"shares"`
}

// EventCategory groups scheduled events by family
type EventCategory string

const (
	EventEarnings    EventCategory = "EARNINGS"
	EventCentralBank EventCategory = "CENTRAL_BANK"
	EventEconomic    EventCategory = "ECONOMIC_DATA"
)

// ScheduledEvent represents a known upcoming market event
type ScheduledEvent struct {
	ScheduledAt time.Time     `json:"scheduled_at"`
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Ticker      string        `json:"ticker,omitempty"`
	Category    EventCategory `json:"category"`
	Importance  int           `json:"importance"` // 1-5
}
