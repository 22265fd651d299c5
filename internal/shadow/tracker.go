package shadow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// markConcurrency bounds the fan-out of UpdateAll; each shadow is
// handled by exactly one worker
const markConcurrency = 4

// Store persists shadow trades
type Store interface {
	Save(ctx context.Context, s *models.ShadowTrade) error
	Update(ctx context.Context, s *models.ShadowTrade) error
	ListActive(ctx context.Context) ([]models.ShadowTrade, error)
	ListSince(ctx context.Context, since time.Time) ([]models.ShadowTrade, error)
	CountActive(ctx context.Context) (int, error)
}

// PriceSource supplies spot prices for mark-to-market
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// Tracker follows rejected proposals to quantify what the rejection
// layer saved
type Tracker struct {
	store  Store
	prices PriceSource
	cfg    *config.ShadowConfig
}

// NewTracker creates new shadow tracker
func NewTracker(store Store, prices PriceSource, cfg *config.ShadowConfig) *Tracker {
	return &Tracker{
		store:  store,
		prices: prices,
		cfg:    cfg,
	}
}

// Create opens a shadow trade for a rejected proposal at the proposal's
// target price. trackingDays <= 0 uses the configured default.
func (t *Tracker) Create(ctx context.Context, p *models.Proposal, rejectionReason string, violatedArticles []string, trackingDays int) (*models.ShadowTrade, error) {
	if trackingDays <= 0 {
		trackingDays = t.cfg.TrackingDays
	}

	now := time.Now()
	shadow := &models.ShadowTrade{
		ID:               uuid.NewString(),
		ProposalID:       p.ID,
		Ticker:           p.Ticker,
		Action:           p.Action,
		RejectionReason:  rejectionReason,
		ViolatedArticles: violatedArticles,
		Status:           models.ShadowTracking,
		EntryPrice:       p.TargetPrice,
		CurrentPrice:     p.TargetPrice,
		Shares:           p.Shares,
		TrackingDays:     trackingDays,
		RejectedAt:       now,
		UpdatedAt:        now,
	}

	if err := t.store.Save(ctx, shadow); err != nil {
		return nil, fmt.Errorf("failed to save shadow trade: %w", err)
	}

	logger.Info("🛡️ shadow trade opened",
		zap.String("ticker", shadow.Ticker),
		zap.String("action", string(shadow.Action)),
		zap.String("entry_price", shadow.EntryPrice.StringFixed(2)),
		zap.String("reason", rejectionReason),
		zap.Int("tracking_days", trackingDays),
	)

	return shadow, nil
}

// Update marks the shadow to the given price. BUY shadows gain when the
// price rises, SELL shadows gain when it falls, HOLD stays flat.
func (t *Tracker) Update(ctx context.Context, shadow *models.ShadowTrade, currentPrice decimal.Decimal) error {
	t.mark(shadow, currentPrice)

	if err := t.store.Update(ctx, shadow); err != nil {
		return fmt.Errorf("failed to update shadow trade: %w", err)
	}

	return nil
}

// Close performs one final mark and ends tracking
func (t *Tracker) Close(ctx context.Context, shadow *models.ShadowTrade, finalPrice decimal.Decimal) error {
	t.mark(shadow, finalPrice)

	now := time.Now()
	shadow.Status = models.ShadowClosed
	shadow.ClosedAt = &now

	if err := t.store.Update(ctx, shadow); err != nil {
		return fmt.Errorf("failed to close shadow trade: %w", err)
	}

	logger.Info("shadow trade closed",
		zap.String("ticker", shadow.Ticker),
		zap.String("virtual_pnl", shadow.VirtualPnL.StringFixed(2)),
		zap.Bool("defensive_win", shadow.IsDefensiveWin()),
	)

	return nil
}

// mark recomputes the virtual P&L in place
func (t *Tracker) mark(shadow *models.ShadowTrade, currentPrice decimal.Decimal) {
	shadow.CurrentPrice = currentPrice
	shadow.UpdatedAt = time.Now()

	var diff decimal.Decimal
	switch shadow.Action {
	case models.ActionBuy:
		diff = currentPrice.Sub(shadow.EntryPrice)
	case models.ActionSell:
		diff = shadow.EntryPrice.Sub(currentPrice)
	default:
		shadow.VirtualPnL = decimal.Zero
		shadow.VirtualPnLPct = decimal.Zero
		return
	}

	shadow.VirtualPnL = diff.Mul(decimal.NewFromInt(shadow.Shares))
	if shadow.EntryPrice.IsPositive() {
		shadow.VirtualPnLPct = diff.Div(shadow.EntryPrice)
	}
}

// UpdateAll marks every active shadow with a spot price, closing the
// ones whose tracking window ran out. Shadows fan out across a bounded
// worker set; each shadow has a single writer.
func (t *Tracker) UpdateAll(ctx context.Context) (updated, closed int, err error) {
	active, err := t.store.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list active shadows: %w", err)
	}
	if len(active) == 0 {
		return 0, 0, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan *models.ShadowTrade)

	for i := 0; i < markConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for shadow := range jobs {
				u, c := t.markOne(ctx, shadow)
				mu.Lock()
				updated += u
				closed += c
				mu.Unlock()
			}
		}()
	}

	for i := range active {
		jobs <- &active[i]
	}
	close(jobs)
	wg.Wait()

	logger.Info("shadow marks applied",
		zap.Int("active", len(active)),
		zap.Int("updated", updated),
		zap.Int("closed", closed),
	)

	return updated, closed, nil
}

// markOne applies one spot mark; returns (updated, closed) increments
func (t *Tracker) markOne(ctx context.Context, shadow *models.ShadowTrade) (int, int) {
	now := time.Now()

	price, err := t.prices.GetCurrentPrice(ctx, shadow.Ticker)
	if err != nil {
		logger.Warn("⚠️ failed to price shadow trade",
			zap.String("ticker", shadow.Ticker),
			zap.Error(err),
		)

		// Without prices for too long the shadow can never close
		// cleanly; expire it.
		if shadow.Age(now) >= time.Duration(t.cfg.MaxAgeDays)*24*time.Hour {
			shadow.Status = models.ShadowExpired
			shadow.UpdatedAt = now
			if err := t.store.Update(ctx, shadow); err != nil {
				logger.Error("failed to expire shadow trade", zap.String("id", shadow.ID), zap.Error(err))
			}
		}
		return 0, 0
	}

	if shadow.WindowElapsed(now) {
		if err := t.Close(ctx, shadow, price); err != nil {
			logger.Error("failed to close shadow trade", zap.String("id", shadow.ID), zap.Error(err))
			return 0, 0
		}
		return 0, 1
	}

	if err := t.Update(ctx, shadow, price); err != nil {
		logger.Error("failed to update shadow trade", zap.String("id", shadow.ID), zap.Error(err))
		return 0, 0
	}
	return 1, 0
}

// ActiveCount reports how many shadows are still being tracked
func (t *Tracker) ActiveCount(ctx context.Context) (int, error) {
	return t.store.CountActive(ctx)
}

// DefensiveWins returns shadows from the window whose price move proves
// the rejection prevented a loss
func (t *Tracker) DefensiveWins(ctx context.Context, windowDays int) ([]models.ShadowTrade, error) {
	since := time.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	shadows, err := t.store.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list shadows: %w", err)
	}

	wins := make([]models.ShadowTrade, 0)
	for _, s := range shadows {
		if s.IsDefensiveWin() {
			wins = append(wins, s)
		}
	}

	return wins, nil
}

// ShieldReport summarizes the defensive value of every rejection inside
// the window
func (t *Tracker) ShieldReport(ctx context.Context, windowDays int) (*models.ShieldReport, error) {
	since := time.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	shadows, err := t.store.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list shadows: %w", err)
	}

	report := &models.ShieldReport{
		GeneratedAt:      time.Now(),
		PeriodDays:       windowDays,
		RejectedCount:    len(shadows),
		TotalAvoidedLoss: decimal.Zero,
	}

	saves := make([]models.ShadowTrade, 0)
	for _, s := range shadows {
		if s.Status == models.ShadowTracking {
			report.StillTracking++
		}
		if s.IsDefensiveWin() {
			report.DefensiveWins++
			report.TotalAvoidedLoss = report.TotalAvoidedLoss.Add(s.AvoidedLoss())
			saves = append(saves, s)
		}
	}

	if report.RejectedCount > 0 {
		report.DefensiveWinRate = float64(report.DefensiveWins) / float64(report.RejectedCount)
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].AvoidedLoss().GreaterThan(saves[j].AvoidedLoss())
	})
	if len(saves) > 3 {
		saves = saves[:3]
	}
	report.TopSaves = saves

	return report, nil
}
