package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalStatus represents the lifecycle state of a trade proposal
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
	ProposalExecuted ProposalStatus = "EXECUTED"
	ProposalExpired  ProposalStatus = "EXPIRED"
)

// Proposal represents a concrete trade order awaiting constitutional review
type Proposal struct {
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at" db:"expires_at"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty" db:"decided_at"`
	ID               string          `json:"id" db:"id"`
	SignalID         string          `json:"signal_id" db:"signal_id"`
	ArticleID        string          `json:"article_id,omitempty" db:"article_id"`
	Ticker           string          `json:"ticker" db:"ticker"`
	Action           SignalAction    `json:"action" db:"action"`
	Rationale        string          `json:"rationale" db:"rationale"`
	Status           ProposalStatus  `json:"status" db:"status"`
	RejectionReason  string          `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ConsensusLevel   string          `json:"consensus_level,omitempty" db:"consensus_level"`
	MarketRegime     MarketRegime    `json:"market_regime" db:"market_regime"`
	ViolatedArticles []string        `json:"violated_articles,omitempty" db:"violated_articles"`
	TargetPrice      decimal.Decimal `json:"target_price" db:"target_price"`
	PositionValue    decimal.Decimal `json:"position_value" db:"position_value"`
	OrderValue       decimal.Decimal `json:"order_value" db:"order_value"`
	Shares           int64           `json:"shares" db:"shares"`
	Confidence       float64         `json:"confidence" db:"confidence"`
	VIX              float64         `json:"vix" db:"vix"`
	IsConstitutional bool            `json:"is_constitutional" db:"is_constitutional"`
	IsApproved       bool            `json:"is_approved" db:"is_approved"`
}

// CanTransition reports whether the proposal may move to the target
// state. PENDING may become APPROVED, REJECTED or EXPIRED; APPROVED may
// become EXECUTED; everything else is terminal.
func (p *Proposal) CanTransition(to ProposalStatus) bool {
	switch p.Status {
	case ProposalPending:
		return to == ProposalApproved || to == ProposalRejected || to == ProposalExpired
	case ProposalApproved:
		return to == ProposalExecuted
	default:
		return false
	}
}

// IsExpired reports whether the proposal outlived its decision window
func (p *Proposal) IsExpired(now time.Time) bool {
	return p.Status == ProposalPending && !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// ValidationResult carries the outcome of a constitutional review
type ValidationResult struct {
	Violations    []string `json:"violations"`
	CitedArticles []string `json:"cited_articles"`
	IsValid       bool     `json:"is_valid"`
}
