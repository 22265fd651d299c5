package models

import (
	"testing"
	"time"
)

func TestProposalCanTransition(t *testing.T) {
	tests := []struct {
		from ProposalStatus
		to   ProposalStatus
		want bool
	}{
		{ProposalPending, ProposalApproved, true},
		{ProposalPending, ProposalRejected, true},
		{ProposalPending, ProposalExpired, true},
		{ProposalPending, ProposalExecuted, false},
		{ProposalApproved, ProposalExecuted, true},
		{ProposalApproved, ProposalRejected, false},
		{ProposalRejected, ProposalApproved, false},
		{ProposalExecuted, ProposalPending, false},
		{ProposalExpired, ProposalApproved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			p := &Proposal{Status: tt.from}
			if got := p.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestProposalIsExpired(t *testing.T) {
	now := time.Now()

	p := &Proposal{Status: ProposalPending, ExpiresAt: now.Add(-time.Minute)}
	if !p.IsExpired(now) {
		t.Error("pending proposal past its window should be expired")
	}

	p.ExpiresAt = now.Add(time.Minute)
	if p.IsExpired(now) {
		t.Error("pending proposal inside its window should not be expired")
	}

	p.Status = ProposalApproved
	p.ExpiresAt = now.Add(-time.Minute)
	if p.IsExpired(now) {
		t.Error("only pending proposals expire")
	}
}
