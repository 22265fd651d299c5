package risk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// ErrKillSwitchActive latches after the daily loss limit is breached.
// Every validation rejects with this cause until an operator resets.
var ErrKillSwitchActive = errors.New("kill switch active, manual reset required")

// approvalRetention bounds how long approved signal keys are remembered
// for idempotence; it matches the daily trade expiry window.
const approvalRetention = 24 * time.Hour

// Decision is the validator's answer for one signal. Rejections are
// values, not errors: the pipeline records them and moves on.
type Decision struct {
	Approved bool
	Gate     string
	Reason   string
}

// EventLogger persists notable risk transitions for the audit trail
type EventLogger interface {
	LogRiskEvent(ctx context.Context, eventType, description string, data map[string]interface{}) error
}

// Validator gates trading signals behind the operational risk rules:
// kill switch, confidence and size floors, daily trade and loss limits,
// consecutive losses and market hours. All state lives behind one
// mutex so validate-and-record sequences are linearizable.
type Validator struct {
	mu  sync.Mutex
	cfg *config.RiskConfig
	loc *time.Location

	killSwitch       bool
	killSwitchReason string
	killSwitchAt     time.Time

	dailyPnLPct       float64
	consecutiveLosses int
	approvals         map[string]time.Time
	lastResetDay      time.Time

	events EventLogger // optional
}

// NewValidator creates a signal validator. The event logger may be nil.
func NewValidator(cfg *config.RiskConfig, events EventLogger) *Validator {
	return &Validator{
		cfg:          cfg,
		loc:          cfg.MarketLocation(),
		approvals:    make(map[string]time.Time),
		lastResetDay: time.Now(),
		events:       events,
	}
}

// ValidateSignal runs the ordered gates and, on approval, counts the
// signal toward the daily trade limit. Re-validating an approved signal
// is a no-op approval. Rejection leaves every counter untouched.
func (v *Validator) ValidateSignal(signal *models.TradingSignal, positionValue, portfolio decimal.Decimal, now time.Time) Decision {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rollDay(now)

	if v.killSwitch {
		return reject("kill_switch", ErrKillSwitchActive.Error())
	}

	if signal.Confidence < v.cfg.MinConfidence {
		return reject("confidence", "confidence below minimum")
	}

	if signal.PositionSize > v.cfg.MaxPositionSize {
		return reject("position_size", "position size above maximum")
	}

	v.expireApprovals(now)
	if _, ok := v.approvals[signal.Key()]; ok {
		// Already approved; approving again must not double-count
		return Decision{Approved: true}
	}
	if len(v.approvals) >= v.cfg.DailyTradeLimit {
		return reject("daily_limit", "daily trade limit reached")
	}

	if v.dailyPnLPct <= -v.cfg.DailyLossLimitPct {
		v.latchKillSwitch(now, "daily loss limit breached")
		return reject("kill_switch", ErrKillSwitchActive.Error())
	}

	if v.consecutiveLosses >= v.cfg.MaxConsecutiveLosses {
		return reject("consecutive_losses", "too many consecutive losses")
	}

	if v.cfg.MarketHoursOnly && !v.inMarketHours(now) {
		return reject("market_hours", "outside market hours")
	}

	if positionValue.GreaterThan(portfolio.Mul(decimal.NewFromFloat(v.cfg.MaxPositionSize))) {
		return reject("position_value", "position value above portfolio cap")
	}

	v.approvals[signal.Key()] = now

	logger.Debug("signal approved",
		zap.String("ticker", signal.Ticker),
		zap.String("action", string(signal.Action)),
		zap.Int("daily_trades", len(v.approvals)),
	)

	return Decision{Approved: true}
}

// RecordTradeResult folds one realized trade into the daily P&L and the
// consecutive-loss streak. Breaching the daily loss limit latches the
// kill switch.
func (v *Validator) RecordTradeResult(pnlPct float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	v.rollDay(now)

	v.dailyPnLPct += pnlPct
	if pnlPct < 0 {
		v.consecutiveLosses++
	} else {
		v.consecutiveLosses = 0
	}

	logger.Info("trade result recorded",
		zap.Float64("pnl_pct", pnlPct),
		zap.Float64("daily_pnl_pct", v.dailyPnLPct),
		zap.Int("consecutive_losses", v.consecutiveLosses),
	)

	if !v.killSwitch && v.dailyPnLPct <= -v.cfg.DailyLossLimitPct {
		v.latchKillSwitch(now, "daily loss limit breached")
	}
}

// Reset is the operator hook that releases the kill switch and clears
// the loss streak
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	wasLatched := v.killSwitch
	v.killSwitch = false
	v.killSwitchReason = ""
	v.consecutiveLosses = 0

	logger.Info("validator reset by operator", zap.Bool("kill_switch_was_latched", wasLatched))

	if wasLatched && v.events != nil {
		_ = v.events.LogRiskEvent(context.Background(), "KILL_SWITCH_RESET", "operator reset", nil)
	}
}

// Status is a point-in-time snapshot of the validator state
type Status struct {
	KillSwitch        bool      `json:"kill_switch"`
	KillSwitchReason  string    `json:"kill_switch_reason,omitempty"`
	KillSwitchAt      time.Time `json:"kill_switch_at,omitempty"`
	DailyPnLPct       float64   `json:"daily_pnl_pct"`
	DailyTrades       int       `json:"daily_trades"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
}

// GetStatus returns the current validator state
func (v *Validator) GetStatus() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.expireApprovals(time.Now())

	return Status{
		KillSwitch:        v.killSwitch,
		KillSwitchReason:  v.killSwitchReason,
		KillSwitchAt:      v.killSwitchAt,
		DailyPnLPct:       v.dailyPnLPct,
		DailyTrades:       len(v.approvals),
		ConsecutiveLosses: v.consecutiveLosses,
	}
}

// latchKillSwitch flips the latch; caller holds the lock
func (v *Validator) latchKillSwitch(now time.Time, reason string) {
	v.killSwitch = true
	v.killSwitchReason = reason
	v.killSwitchAt = now

	logger.Error("🚨 KILL SWITCH ACTIVATED",
		zap.String("reason", reason),
		zap.Float64("daily_pnl_pct", v.dailyPnLPct),
	)

	if v.events != nil {
		_ = v.events.LogRiskEvent(context.Background(), "KILL_SWITCH_ON", reason, map[string]interface{}{
			"daily_pnl_pct":      v.dailyPnLPct,
			"consecutive_losses": v.consecutiveLosses,
		})
	}
}

// rollDay clears the daily P&L when the calendar day changes. The kill
// switch survives the rollover: only an operator releases it.
func (v *Validator) rollDay(now time.Time) {
	if isSameDay(v.lastResetDay, now) {
		return
	}
	v.dailyPnLPct = 0
	v.lastResetDay = now
	logger.Info("validator daily counters reset")
}

// expireApprovals drops approvals older than the retention window;
// caller holds the lock
func (v *Validator) expireApprovals(now time.Time) {
	cutoff := now.Add(-approvalRetention)
	for key, at := range v.approvals {
		if at.Before(cutoff) {
			delete(v.approvals, key)
		}
	}
}

// inMarketHours reports 09:30-16:00 Monday-Friday in the configured
// exchange timezone. Holidays are not modelled.
func (v *Validator) inMarketHours(now time.Time) bool {
	local := now.In(v.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

func reject(gate, reason string) Decision {
	return Decision{Approved: false, Gate: gate, Reason: reason}
}
