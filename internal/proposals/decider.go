package proposals

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// DecisionStore is the slice of the repository the decider needs
type DecisionStore interface {
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	UpdateStatus(ctx context.Context, id string, status models.ProposalStatus, metadata map[string]string) error
}

// ShadowOpener opens a shadow trade for a rejected proposal
type ShadowOpener interface {
	Create(ctx context.Context, p *models.Proposal, rejectionReason string, violatedArticles []string, trackingDays int) (*models.ShadowTrade, error)
}

// Decider applies operator verdicts to pending proposals. A rejection
// opens a shadow trade exactly like an automated veto, so operator
// calls count toward defensive-value accounting too.
type Decider struct {
	store        DecisionStore
	shadows      ShadowOpener
	trackingDays int
}

// NewDecider creates new proposal decider
func NewDecider(store DecisionStore, shadows ShadowOpener, trackingDays int) *Decider {
	return &Decider{
		store:        store,
		shadows:      shadows,
		trackingDays: trackingDays,
	}
}

// Approve marks a pending proposal approved for execution
func (d *Decider) Approve(ctx context.Context, id string) error {
	if err := d.store.UpdateStatus(ctx, id, models.ProposalApproved, nil); err != nil {
		return fmt.Errorf("failed to approve proposal: %w", err)
	}

	logger.Info("✅ proposal approved by operator", zap.String("proposal_id", id))
	return nil
}

// Reject declines a pending proposal and opens a shadow trade to track
// what the decision cost or saved
func (d *Decider) Reject(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "rejected by operator"
	}

	if err := d.store.UpdateStatus(ctx, id, models.ProposalRejected, map[string]string{
		"rejection_reason": reason,
	}); err != nil {
		return fmt.Errorf("failed to reject proposal: %w", err)
	}

	proposal, err := d.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load rejected proposal: %w", err)
	}
	if proposal == nil {
		return fmt.Errorf("proposal %s disappeared after rejection", id)
	}

	if _, err := d.shadows.Create(ctx, proposal, reason, proposal.ViolatedArticles, d.trackingDays); err != nil {
		return fmt.Errorf("failed to open shadow trade: %w", err)
	}

	logger.Info("🛑 proposal rejected by operator",
		zap.String("proposal_id", id),
		zap.String("ticker", proposal.Ticker),
		zap.String("reason", reason),
	)
	return nil
}
