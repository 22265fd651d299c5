package shadow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func setupTest(t *testing.T) {
	t.Helper()
	if logger.Log == nil {
		if err := logger.Init("error", ""); err != nil {
			t.Fatalf("Failed to initialize logger: %v", err)
		}
	}
}

type memStore struct {
	mu      sync.Mutex
	shadows map[string]models.ShadowTrade
}

func newMemStore() *memStore {
	return &memStore{shadows: make(map[string]models.ShadowTrade)}
}

func (m *memStore) Save(_ context.Context, s *models.ShadowTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadows[s.ID] = *s
	return nil
}

func (m *memStore) Update(_ context.Context, s *models.ShadowTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shadows[s.ID]; !ok {
		return errors.New("shadow not found")
	}
	m.shadows[s.ID] = *s
	return nil
}

func (m *memStore) ListActive(_ context.Context) ([]models.ShadowTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ShadowTrade, 0)
	for _, s := range m.shadows {
		if s.Status == models.ShadowTracking {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListSince(_ context.Context, since time.Time) ([]models.ShadowTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ShadowTrade, 0)
	for _, s := range m.shadows {
		if !s.RejectedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) CountActive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.shadows {
		if s.Status == models.ShadowTracking {
			count++
		}
	}
	return count, nil
}

func (m *memStore) get(id string) models.ShadowTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shadows[id]
}

type stubPrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (p *stubPrices) GetCurrentPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Zero, p.err
	}
	price, ok := p.prices[ticker]
	if !ok {
		return decimal.Zero, errors.New("unknown ticker")
	}
	return price, nil
}

func testShadowConfig() *config.ShadowConfig {
	return &config.ShadowConfig{
		TrackingDays: 7,
		MaxAgeDays:   30,
		ReportDays:   7,
	}
}

func rejectedProposal(ticker string, action models.SignalAction, price int64, shares int64) *models.Proposal {
	return &models.Proposal{
		ID:          "prop-" + ticker,
		Ticker:      ticker,
		Action:      action,
		TargetPrice: decimal.NewFromInt(price),
		Shares:      shares,
		Status:      models.ProposalRejected,
	}
}

func TestTracker_CreateAndClose(t *testing.T) {
	setupTest(t)
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store, &stubPrices{}, testShadowConfig())

	shadow, err := tracker.Create(ctx, rejectedProposal("NVDA", models.ActionBuy, 200, 100), "포지션 크기 초과", []string{"제1조 4항"}, 0)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if shadow.Status != models.ShadowTracking {
		t.Errorf("status = %s, want TRACKING", shadow.Status)
	}
	if !shadow.EntryPrice.Equal(decimal.NewFromInt(200)) {
		t.Errorf("entry price = %s, want 200", shadow.EntryPrice)
	}
	if shadow.TrackingDays != 7 {
		t.Errorf("tracking days = %d, want configured default 7", shadow.TrackingDays)
	}

	// Rejected BUY, price fell to 188: the rejection saved a loss.
	if err := tracker.Close(ctx, shadow, decimal.NewFromInt(188)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if shadow.Status != models.ShadowClosed {
		t.Errorf("status = %s, want CLOSED", shadow.Status)
	}
	if shadow.ClosedAt == nil {
		t.Error("closed_at must be stamped")
	}
	if !shadow.VirtualPnL.Equal(decimal.NewFromInt(-1200)) {
		t.Errorf("virtual pnl = %s, want -1200", shadow.VirtualPnL)
	}
	if !shadow.VirtualPnLPct.Equal(decimal.NewFromFloat(-0.06)) {
		t.Errorf("virtual pnl pct = %s, want -0.06", shadow.VirtualPnLPct)
	}
	if !shadow.IsDefensiveWin() {
		t.Error("rejected BUY with falling price is a defensive win")
	}
	if !shadow.AvoidedLoss().Equal(decimal.NewFromInt(1200)) {
		t.Errorf("avoided loss = %s, want 1200", shadow.AvoidedLoss())
	}

	if stored := store.get(shadow.ID); stored.Status != models.ShadowClosed {
		t.Error("close must be persisted")
	}
}

func TestTracker_UpdateDirections(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		action    models.SignalAction
		current   int64
		wantPnL   int64
		defensive bool
	}{
		{"rejected buy price rose", models.ActionBuy, 220, 2000, false},
		{"rejected buy price fell", models.ActionBuy, 190, -1000, true},
		{"rejected sell price rose", models.ActionSell, 220, -2000, true},
		{"rejected sell price fell", models.ActionSell, 190, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			tracker := NewTracker(store, &stubPrices{}, testShadowConfig())

			shadow, err := tracker.Create(ctx, rejectedProposal("AAPL", tt.action, 200, 100), "test", nil, 0)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			if err := tracker.Update(ctx, shadow, decimal.NewFromInt(tt.current)); err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			if !shadow.VirtualPnL.Equal(decimal.NewFromInt(tt.wantPnL)) {
				t.Errorf("virtual pnl = %s, want %d", shadow.VirtualPnL, tt.wantPnL)
			}
			if shadow.IsDefensiveWin() != tt.defensive {
				t.Errorf("defensive win = %v, want %v", shadow.IsDefensiveWin(), tt.defensive)
			}
		})
	}

	t.Run("hold stays flat", func(t *testing.T) {
		store := newMemStore()
		tracker := NewTracker(store, &stubPrices{}, testShadowConfig())

		shadow, _ := tracker.Create(ctx, rejectedProposal("AAPL", models.ActionHold, 200, 100), "test", nil, 0)
		if err := tracker.Update(ctx, shadow, decimal.NewFromInt(250)); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if !shadow.VirtualPnL.IsZero() {
			t.Errorf("hold pnl = %s, want 0", shadow.VirtualPnL)
		}
	})
}

func TestTracker_UpdateAll(t *testing.T) {
	setupTest(t)
	ctx := context.Background()
	store := newMemStore()
	prices := &stubPrices{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(190),
		"NVDA": decimal.NewFromInt(210),
	}}
	tracker := NewTracker(store, prices, testShadowConfig())

	fresh, _ := tracker.Create(ctx, rejectedProposal("AAPL", models.ActionBuy, 200, 10), "test", nil, 0)
	aged, _ := tracker.Create(ctx, rejectedProposal("NVDA", models.ActionBuy, 200, 10), "test", nil, 0)

	// Age one shadow past its tracking window.
	aged.RejectedAt = time.Now().Add(-8 * 24 * time.Hour)
	if err := store.Update(ctx, aged); err != nil {
		t.Fatalf("failed to age shadow: %v", err)
	}

	updated, closed, err := tracker.UpdateAll(ctx)
	if err != nil {
		t.Fatalf("UpdateAll() error = %v", err)
	}
	if updated != 1 || closed != 1 {
		t.Errorf("updated = %d closed = %d, want 1 and 1", updated, closed)
	}

	if got := store.get(fresh.ID); got.Status != models.ShadowTracking || !got.CurrentPrice.Equal(decimal.NewFromInt(190)) {
		t.Errorf("fresh shadow = %s @ %s, want TRACKING @ 190", got.Status, got.CurrentPrice)
	}
	if got := store.get(aged.ID); got.Status != models.ShadowClosed {
		t.Errorf("aged shadow = %s, want CLOSED", got.Status)
	}
}

func TestTracker_UpdateAllExpiresUnpriceable(t *testing.T) {
	setupTest(t)
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store, &stubPrices{err: errors.New("feed down")}, testShadowConfig())

	shadow, _ := tracker.Create(ctx, rejectedProposal("ZZZZ", models.ActionBuy, 200, 10), "test", nil, 0)
	shadow.RejectedAt = time.Now().Add(-31 * 24 * time.Hour)
	if err := store.Update(ctx, shadow); err != nil {
		t.Fatalf("failed to age shadow: %v", err)
	}

	if _, _, err := tracker.UpdateAll(ctx); err != nil {
		t.Fatalf("UpdateAll() error = %v", err)
	}

	if got := store.get(shadow.ID); got.Status != models.ShadowExpired {
		t.Errorf("status = %s, want EXPIRED after max age without prices", got.Status)
	}
}

func TestTracker_ShieldReport(t *testing.T) {
	setupTest(t)
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store, &stubPrices{}, testShadowConfig())

	// Two defensive wins with different magnitudes, one losing
	// rejection, one flat HOLD.
	s1, _ := tracker.Create(ctx, rejectedProposal("NVDA", models.ActionBuy, 200, 100), "test", nil, 0)
	tracker.Update(ctx, s1, decimal.NewFromInt(188)) // avoided 1200

	s2, _ := tracker.Create(ctx, rejectedProposal("AAPL", models.ActionBuy, 100, 10), "test", nil, 0)
	tracker.Update(ctx, s2, decimal.NewFromInt(90)) // avoided 100

	s3, _ := tracker.Create(ctx, rejectedProposal("MSFT", models.ActionBuy, 100, 10), "test", nil, 0)
	tracker.Update(ctx, s3, decimal.NewFromInt(110)) // would have won

	tracker.Create(ctx, rejectedProposal("TSLA", models.ActionHold, 100, 10), "test", nil, 0)

	report, err := tracker.ShieldReport(ctx, 7)
	if err != nil {
		t.Fatalf("ShieldReport() error = %v", err)
	}

	if report.RejectedCount != 4 {
		t.Errorf("rejected count = %d, want 4", report.RejectedCount)
	}
	if report.DefensiveWins != 2 {
		t.Errorf("defensive wins = %d, want 2", report.DefensiveWins)
	}
	if report.DefensiveWinRate != 0.5 {
		t.Errorf("win rate = %v, want 0.5", report.DefensiveWinRate)
	}
	if !report.TotalAvoidedLoss.Equal(decimal.NewFromInt(1300)) {
		t.Errorf("total avoided loss = %s, want 1300", report.TotalAvoidedLoss)
	}
	if len(report.TopSaves) != 2 {
		t.Fatalf("top saves = %d, want 2", len(report.TopSaves))
	}
	if report.TopSaves[0].Ticker != "NVDA" {
		t.Errorf("top save = %s, want NVDA first", report.TopSaves[0].Ticker)
	}
	if report.StillTracking != 4 {
		t.Errorf("still tracking = %d, want 4", report.StillTracking)
	}
}

func TestTracker_DefensiveWins(t *testing.T) {
	setupTest(t)
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store, &stubPrices{}, testShadowConfig())

	win, _ := tracker.Create(ctx, rejectedProposal("NVDA", models.ActionBuy, 200, 100), "test", nil, 0)
	tracker.Update(ctx, win, decimal.NewFromInt(188))

	loss, _ := tracker.Create(ctx, rejectedProposal("MSFT", models.ActionBuy, 100, 10), "test", nil, 0)
	tracker.Update(ctx, loss, decimal.NewFromInt(110))

	wins, err := tracker.DefensiveWins(ctx, 7)
	if err != nil {
		t.Fatalf("DefensiveWins() error = %v", err)
	}
	if len(wins) != 1 || wins[0].Ticker != "NVDA" {
		t.Errorf("wins = %v, want exactly the NVDA shadow", wins)
	}
}
