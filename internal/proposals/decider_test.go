package proposals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

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

// memDecisionStore enforces the same lifecycle rules as the repository
type memDecisionStore struct {
	byID map[string]*models.Proposal
}

func newMemDecisionStore(ps ...*models.Proposal) *memDecisionStore {
	store := &memDecisionStore{byID: make(map[string]*models.Proposal)}
	for _, p := range ps {
		store.byID[p.ID] = p
	}
	return store
}

func (m *memDecisionStore) GetByID(_ context.Context, id string) (*models.Proposal, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memDecisionStore) UpdateStatus(_ context.Context, id string, status models.ProposalStatus, metadata map[string]string) error {
	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("proposal %s not found", id)
	}
	if !p.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}
	now := time.Now()
	p.Status = status
	p.DecidedAt = &now
	if reason := metadata["rejection_reason"]; reason != "" {
		p.RejectionReason = reason
	}
	if status == models.ProposalApproved || status == models.ProposalExecuted {
		p.IsApproved = true
	}
	return nil
}

type recordShadowOpener struct {
	opened []models.ShadowTrade
}

func (r *recordShadowOpener) Create(_ context.Context, p *models.Proposal, rejectionReason string, violatedArticles []string, trackingDays int) (*models.ShadowTrade, error) {
	shadow := models.ShadowTrade{
		ProposalID:       p.ID,
		Ticker:           p.Ticker,
		Action:           p.Action,
		RejectionReason:  rejectionReason,
		ViolatedArticles: violatedArticles,
		Status:           models.ShadowTracking,
		EntryPrice:       p.TargetPrice,
		TrackingDays:     trackingDays,
	}
	r.opened = append(r.opened, shadow)
	return &shadow, nil
}

func pendingProposal(id string) *models.Proposal {
	now := time.Now().UTC()
	return &models.Proposal{
		ID:           id,
		SignalID:     "sig-" + id,
		ArticleID:    "art-" + id,
		Ticker:       "NVDA",
		Action:       models.ActionBuy,
		Status:       models.ProposalPending,
		MarketRegime: models.RegimeNeutral,
		TargetPrice:  decimal.NewFromInt(100),
		OrderValue:   decimal.NewFromInt(6500),
		Shares:       65,
		Confidence:   0.88,
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
}

func TestDeciderRejectOpensShadow(t *testing.T) {
	setupTest(t)

	store := newMemDecisionStore(pendingProposal("p1"))
	shadows := &recordShadowOpener{}
	decider := NewDecider(store, shadows, 7)

	if err := decider.Reject(context.Background(), "p1", "operator distrusts the source"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	p, _ := store.GetByID(context.Background(), "p1")
	if p.Status != models.ProposalRejected {
		t.Errorf("status = %s, want REJECTED", p.Status)
	}
	if p.RejectionReason != "operator distrusts the source" {
		t.Errorf("rejection reason = %q, want the operator's", p.RejectionReason)
	}
	if p.DecidedAt == nil {
		t.Error("decided_at must be stamped")
	}

	if len(shadows.opened) != 1 {
		t.Fatalf("shadow trades opened = %d, want 1", len(shadows.opened))
	}
	s := shadows.opened[0]
	if s.ProposalID != "p1" || s.Ticker != "NVDA" {
		t.Errorf("shadow = %s %s, want p1 NVDA", s.ProposalID, s.Ticker)
	}
	if s.RejectionReason != "operator distrusts the source" {
		t.Errorf("shadow reason = %q, want the operator's", s.RejectionReason)
	}
	if s.TrackingDays != 7 {
		t.Errorf("tracking days = %d, want 7", s.TrackingDays)
	}
}

func TestDeciderRejectDefaultsReason(t *testing.T) {
	setupTest(t)

	store := newMemDecisionStore(pendingProposal("p1"))
	shadows := &recordShadowOpener{}
	decider := NewDecider(store, shadows, 7)

	if err := decider.Reject(context.Background(), "p1", ""); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if len(shadows.opened) != 1 {
		t.Fatalf("shadow trades opened = %d, want 1", len(shadows.opened))
	}
	if shadows.opened[0].RejectionReason != "rejected by operator" {
		t.Errorf("shadow reason = %q, want the default", shadows.opened[0].RejectionReason)
	}
}

func TestDeciderRejectDecidedProposalFails(t *testing.T) {
	setupTest(t)

	executed := pendingProposal("p1")
	executed.Status = models.ProposalExecuted
	store := newMemDecisionStore(executed)
	shadows := &recordShadowOpener{}
	decider := NewDecider(store, shadows, 7)

	err := decider.Reject(context.Background(), "p1", "too late")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if len(shadows.opened) != 0 {
		t.Errorf("shadow trades opened = %d, want none on a failed rejection", len(shadows.opened))
	}
}

func TestDeciderApprove(t *testing.T) {
	setupTest(t)

	store := newMemDecisionStore(pendingProposal("p1"))
	shadows := &recordShadowOpener{}
	decider := NewDecider(store, shadows, 7)

	if err := decider.Approve(context.Background(), "p1"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	p, _ := store.GetByID(context.Background(), "p1")
	if p.Status != models.ProposalApproved {
		t.Errorf("status = %s, want APPROVED", p.Status)
	}
	if !p.IsApproved {
		t.Error("is_approved must be set")
	}
	if len(shadows.opened) != 0 {
		t.Errorf("shadow trades opened = %d, approvals must not open shadows", len(shadows.opened))
	}
}
