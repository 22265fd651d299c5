package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShadowStatus represents the tracking state of a rejected proposal
type ShadowStatus string

const (
	ShadowTracking ShadowStatus = "TRACKING"
	ShadowClosed   ShadowStatus = "CLOSED"
	ShadowExpired  ShadowStatus = "EXPIRED"
)

// ShadowTrade tracks what a rejected proposal would have done
type ShadowTrade struct {
	RejectedAt       time.Time       `json:"rejected_at" db:"rejected_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	ID               string          `json:"id" db:"id"`
	ProposalID       string          `json:"proposal_id" db:"proposal_id"`
	Ticker           string          `json:"ticker" db:"ticker"`
	Action           SignalAction    `json:"action" db:"action"`
	RejectionReason  string          `json:"rejection_reason" db:"rejection_reason"`
	Status           ShadowStatus    `json:"status" db:"status"`
	ViolatedArticles []string        `json:"violated_articles,omitempty" db:"violated_articles"`
	EntryPrice       decimal.Decimal `json:"entry_price" db:"entry_price"`
	CurrentPrice     decimal.Decimal `json:"current_price" db:"current_price"`
	VirtualPnL       decimal.Decimal `json:"virtual_pnl" db:"virtual_pnl"`
	VirtualPnLPct    decimal.Decimal `json:"virtual_pnl_pct" db:"virtual_pnl_pct"`
	Shares           int64           `json:"shares" db:"shares"`
	TrackingDays     int             `json:"tracking_days" db:"tracking_days"`
}

// Age returns how long the shadow has been tracked
func (s *ShadowTrade) Age(now time.Time) time.Duration {
	return now.Sub(s.RejectedAt)
}

// WindowElapsed reports whether the follow window has run out
func (s *ShadowTrade) WindowElapsed(now time.Time) bool {
	return s.Age(now) >= time.Duration(s.TrackingDays)*24*time.Hour
}

// IsDefensiveWin reports whether the rejection provably prevented a
// loss: a rejected BUY whose price fell, or a rejected SELL whose price
// rose.
func (s *ShadowTrade) IsDefensiveWin() bool {
	switch s.Action {
	case ActionBuy:
		return s.CurrentPrice.LessThan(s.EntryPrice)
	case ActionSell:
		return s.CurrentPrice.GreaterThan(s.EntryPrice)
	default:
		return false
	}
}

// AvoidedLoss returns the loss the rejection prevented, zero when the
// trade would have won
func (s *ShadowTrade) AvoidedLoss() decimal.Decimal {
	if s.VirtualPnL.IsNegative() {
		return s.VirtualPnL.Neg()
	}
	return decimal.Zero
}

// ShieldReport summarizes defensive performance of the rejection layer
type ShieldReport struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	TopSaves         []ShadowTrade   `json:"top_saves"`
	TotalAvoidedLoss decimal.Decimal `json:"total_avoided_loss"`
	DefensiveWinRate float64         `json:"defensive_win_rate"`
	PeriodDays       int             `json:"period_days"`
	RejectedCount    int             `json:"rejected_count"`
	DefensiveWins    int             `json:"defensive_wins"`
	StillTracking    int             `json:"still_tracking"`
}
