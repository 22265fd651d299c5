package constitution

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func mustNew(t *testing.T) *Constitution {
	t.Helper()
	if logger.Log == nil {
		if err := logger.Init("error", ""); err != nil {
			t.Fatalf("Failed to initialize logger: %v", err)
		}
	}
	c, err := New()
	if err != nil {
		t.Fatalf("failed to load constitution: %v", err)
	}
	return c
}

func validProposal() *models.Proposal {
	return &models.Proposal{
		ID:            "prop-1",
		Ticker:        "AAPL",
		Action:        models.ActionBuy,
		Status:        models.ProposalPending,
		TargetPrice:   decimal.NewFromInt(180),
		PositionValue: decimal.NewFromInt(8000),
		OrderValue:    decimal.NewFromInt(8000),
		Shares:        44,
		Confidence:    0.8,
		IsApproved:    true,
	}
}

func baseContext() *models.MarketContext {
	return &models.MarketContext{
		AsOf:              time.Now(),
		CurrentAllocation: map[string]float64{"stock": 0.75, "cash": 0.25},
		Regime:            models.RegimeRiskOn,
		TotalCapital:      decimal.NewFromInt(100000),
		DailyVolumeUSD:    decimal.NewFromInt(5000000),
		VIX:               18,
		DailyTrades:       2,
		WeeklyTrades:      5,
	}
}

func hasViolation(result models.ValidationResult, substr string) bool {
	for _, v := range result.Violations {
		if strings.Contains(v, substr) {
			return true
		}
	}
	return false
}

func hasArticle(result models.ValidationResult, id string) bool {
	for _, a := range result.CitedArticles {
		if a == id {
			return true
		}
	}
	return false
}

func TestVerifyIntegrity(t *testing.T) {
	if err := VerifyIntegrity(); err != nil {
		t.Fatalf("pinned digest should match embedded rules: %v", err)
	}

	t.Run("tampered rule text detected", func(t *testing.T) {
		orig := rulesYAML
		defer func() { rulesYAML = orig }()

		rulesYAML = append([]byte("# tampered\n"), orig...)
		if err := VerifyIntegrity(); !errors.Is(err, ErrIntegrity) {
			t.Errorf("expected ErrIntegrity, got %v", err)
		}
	})
}

func TestNew_ParsesRuleBlocks(t *testing.T) {
	c := mustNew(t)
	rules := c.Rules()

	if rules.Risk.MaxPositionPct != 20.0 {
		t.Errorf("max position pct = %v, want 20", rules.Risk.MaxPositionPct)
	}
	if rules.Risk.VIXDanger != 25.0 {
		t.Errorf("vix danger = %v, want 25", rules.Risk.VIXDanger)
	}
	if rules.Trading.MaxTradesPerDay != 5 {
		t.Errorf("max trades per day = %v, want 5", rules.Trading.MaxTradesPerDay)
	}
	if !rules.Trading.HumanApprovalRequired {
		t.Error("human approval must be required")
	}
	if rules.Risk.LeverageAllowed || rules.Risk.ShortingAllowed || rules.Risk.OptionsAllowed || rules.Risk.MarginAllowed {
		t.Error("leverage, shorting, options and margin must all be disallowed")
	}

	bands := rules.Allocation.Regimes
	for _, regime := range []string{"risk_on", "neutral", "risk_off"} {
		if _, ok := bands[regime]; !ok {
			t.Errorf("missing allocation band for %s", regime)
		}
	}
	if band := bands["risk_off"]; band.StockMax != 0.30 || band.CashMin != 0.70 {
		t.Errorf("risk_off band = %+v, want stock_max 0.30 cash_min 0.70", band)
	}

	if c.MinHoldingPeriod() != 24*time.Hour {
		t.Errorf("min holding period = %v, want 24h", c.MinHoldingPeriod())
	}
}

func TestValidateProposal_PositionSizeReject(t *testing.T) {
	c := mustNew(t)

	p := validProposal()
	p.Ticker = "TSLA"
	p.PositionValue = decimal.NewFromInt(25000)
	p.OrderValue = decimal.NewFromInt(25000)

	result := c.ValidateProposal(p, baseContext(), false)

	if result.IsValid {
		t.Fatal("25% position must violate the 20% cap")
	}
	if !hasViolation(result, "포지션 크기 초과") {
		t.Errorf("violations = %v, want 포지션 크기 초과", result.Violations)
	}
	if !hasViolation(result, "25.0% > 20.0%") {
		t.Errorf("violation should carry the measured ratio, got %v", result.Violations)
	}
	if !hasArticle(result, "제1조 4항") {
		t.Errorf("cited articles = %v, want 제1조 4항", result.CitedArticles)
	}
}

func TestValidateProposal_CleanProposalPasses(t *testing.T) {
	c := mustNew(t)

	result := c.ValidateProposal(validProposal(), baseContext(), false)
	if !result.IsValid {
		t.Fatalf("expected valid, got violations %v", result.Violations)
	}
	if len(result.Violations) != 0 || len(result.CitedArticles) != 0 {
		t.Errorf("valid result must carry no violations, got %v / %v", result.Violations, result.CitedArticles)
	}
}

func TestValidateProposal_RuleChecks(t *testing.T) {
	c := mustNew(t)

	tests := []struct {
		name          string
		mutateP       func(*models.Proposal)
		mutateCtx     func(*models.MarketContext)
		wantViolation string
		wantArticle   string
	}{
		{
			name: "minimum position",
			mutateP: func(p *models.Proposal) {
				p.PositionValue = decimal.NewFromInt(500)
				p.OrderValue = decimal.NewFromInt(1500)
			},
			wantViolation: "최소 포지션 미달",
			wantArticle:   "제1조 5항",
		},
		{
			name:          "daily trade limit",
			mutateCtx:     func(ctx *models.MarketContext) { ctx.DailyTrades = 5 },
			wantViolation: "일일 거래 한도 초과",
			wantArticle:   "제3조 1항",
		},
		{
			name:          "weekly trade limit",
			mutateCtx:     func(ctx *models.MarketContext) { ctx.WeeklyTrades = 15 },
			wantViolation: "주간 거래 한도 초과",
			wantArticle:   "제3조 2항",
		},
		{
			name: "minimum order",
			mutateP: func(p *models.Proposal) {
				p.PositionValue = decimal.NewFromInt(1500)
				p.OrderValue = decimal.NewFromInt(500)
			},
			wantViolation: "최소 주문 금액 미달",
			wantArticle:   "제3조 4항",
		},
		{
			name: "absolute order cap on small portfolio",
			mutateP: func(p *models.Proposal) {
				p.PositionValue = decimal.NewFromInt(12000)
				p.OrderValue = decimal.NewFromInt(55000)
			},
			mutateCtx:     func(ctx *models.MarketContext) { ctx.TotalCapital = decimal.NewFromInt(80000) },
			wantViolation: "주문 금액 상한 초과",
			wantArticle:   "제3조 4항",
		},
		{
			name: "order exceeds capital share",
			mutateP: func(p *models.Proposal) {
				p.PositionValue = decimal.NewFromInt(15000)
				p.OrderValue = decimal.NewFromInt(15000)
			},
			wantViolation: "자본 대비 주문 비중 초과",
			wantArticle:   "제3조 5항",
		},
		{
			name: "volume participation",
			mutateCtx: func(ctx *models.MarketContext) {
				ctx.DailyVolumeUSD = decimal.NewFromInt(100000)
			},
			wantViolation: "거래량 참여율 초과",
			wantArticle:   "제3조 6항",
		},
		{
			name: "liquidity floor",
			mutateCtx: func(ctx *models.MarketContext) {
				ctx.DailyVolumeUSD = decimal.NewFromInt(500000)
			},
			wantViolation: "일일 거래량 부족",
			wantArticle:   "제3조 7항",
		},
		{
			name:          "human approval",
			mutateP:       func(p *models.Proposal) { p.IsApproved = false },
			wantViolation: "인간 승인 필요",
			wantArticle:   "제3조 8항",
		},
		{
			name: "stock above regime band",
			mutateCtx: func(ctx *models.MarketContext) {
				ctx.CurrentAllocation = map[string]float64{"stock": 0.95, "cash": 0.05}
			},
			wantViolation: "주식 비중 상한 초과",
			wantArticle:   "제2조 4항",
		},
		{
			name: "stock below regime band",
			mutateCtx: func(ctx *models.MarketContext) {
				ctx.CurrentAllocation = map[string]float64{"stock": 0.50, "cash": 0.50}
			},
			wantViolation: "주식 비중 하한 미달",
			wantArticle:   "제2조 4항",
		},
		{
			name: "risk_off forbids heavy equity",
			mutateCtx: func(ctx *models.MarketContext) {
				ctx.Regime = models.RegimeRiskOff
				ctx.CurrentAllocation = map[string]float64{"stock": 0.50, "cash": 0.50}
			},
			wantViolation: "주식 비중 상한 초과",
			wantArticle:   "제2조 4항",
		},
		{
			name:          "daily loss circuit breaker",
			mutateCtx:     func(ctx *models.MarketContext) { ctx.DailyLossPct = -3.5 },
			wantViolation: "서킷 브레이커 발동",
			wantArticle:   "제1조 3항",
		},
		{
			name:          "drawdown circuit breaker",
			mutateCtx:     func(ctx *models.MarketContext) { ctx.DrawdownPct = -12.0 },
			wantViolation: "최대 낙폭 초과",
			wantArticle:   "제1조 2항",
		},
		{
			name:          "vix defensive mode",
			mutateCtx:     func(ctx *models.MarketContext) { ctx.VIX = 26 },
			wantViolation: "VIX 25 초과, 방어 모드",
			wantArticle:   "제1조 8항",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProposal()
			ctx := baseContext()
			if tt.mutateP != nil {
				tt.mutateP(p)
			}
			if tt.mutateCtx != nil {
				tt.mutateCtx(ctx)
			}

			result := c.ValidateProposal(p, ctx, false)
			if result.IsValid {
				t.Fatal("expected a violation")
			}
			if !hasViolation(result, tt.wantViolation) {
				t.Errorf("violations = %v, want one containing %q", result.Violations, tt.wantViolation)
			}
			if !hasArticle(result, tt.wantArticle) {
				t.Errorf("cited = %v, want %q", result.CitedArticles, tt.wantArticle)
			}
		})
	}
}

func TestValidateProposal_SkipAllocation(t *testing.T) {
	c := mustNew(t)

	ctx := baseContext()
	ctx.CurrentAllocation = map[string]float64{"stock": 0.10, "cash": 0.90}

	if result := c.ValidateProposal(validProposal(), ctx, false); result.IsValid {
		t.Fatal("10% stock in risk_on should violate the allocation band")
	}
	if result := c.ValidateProposal(validProposal(), ctx, true); !result.IsValid {
		t.Errorf("skipAllocation should suspend the band, got %v", result.Violations)
	}
}

func TestValidateProposal_AbsoluteCapWaivedAt100k(t *testing.T) {
	c := mustNew(t)

	p := validProposal()
	p.PositionValue = decimal.NewFromInt(12000)
	p.OrderValue = decimal.NewFromInt(55000)

	// At exactly $100k the absolute cap no longer binds; only the
	// %-of-capital rule fires.
	result := c.ValidateProposal(p, baseContext(), false)
	if hasViolation(result, "주문 금액 상한 초과") {
		t.Errorf("absolute cap must not bind a $100k portfolio, got %v", result.Violations)
	}
	if !hasViolation(result, "자본 대비 주문 비중 초과") {
		t.Errorf("expected capital-share violation, got %v", result.Violations)
	}
}

func TestValidateProposal_CitedArticlesDeduplicated(t *testing.T) {
	c := mustNew(t)

	ctx := baseContext()
	ctx.CurrentAllocation = map[string]float64{"stock": 0.95, "cash": 0.05}

	result := c.ValidateProposal(validProposal(), ctx, false)
	if len(result.Violations) < 2 {
		t.Fatalf("expected stock and cash violations, got %v", result.Violations)
	}

	count := 0
	for _, a := range result.CitedArticles {
		if a == "제2조 4항" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("제2조 4항 cited %d times, want exactly once", count)
	}
}

func TestValidateProposal_Pure(t *testing.T) {
	c := mustNew(t)

	p := validProposal()
	p.PositionValue = decimal.NewFromInt(25000)
	p.OrderValue = decimal.NewFromInt(25000)
	ctx := baseContext()
	ctx.VIX = 26

	first := c.ValidateProposal(p, ctx, false)
	second := c.ValidateProposal(p, ctx, false)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("validation is not pure: %+v vs %+v", first, second)
	}
}

func TestCircuitBreakerTripped(t *testing.T) {
	c := mustNew(t)

	tests := []struct {
		name     string
		mutate   func(*models.MarketContext)
		want     bool
		wantWord string
	}{
		{"calm market", nil, false, ""},
		{"daily loss", func(ctx *models.MarketContext) { ctx.DailyLossPct = -3.0 }, true, "일일 손실"},
		{"drawdown", func(ctx *models.MarketContext) { ctx.DrawdownPct = -10.0 }, true, "낙폭"},
		{"vix danger", func(ctx *models.MarketContext) { ctx.VIX = 25 }, true, "VIX 25 초과, 방어 모드"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := baseContext()
			if tt.mutate != nil {
				tt.mutate(ctx)
			}

			tripped, cause := c.CircuitBreakerTripped(ctx)
			if tripped != tt.want {
				t.Fatalf("tripped = %v, want %v", tripped, tt.want)
			}
			if tt.want && !strings.Contains(cause, tt.wantWord) {
				t.Errorf("cause = %q, want contains %q", cause, tt.wantWord)
			}
		})
	}
}

func TestBootstrapExitConditions(t *testing.T) {
	c := mustNew(t)
	now := time.Now()

	tests := []struct {
		name string
		ctx  *models.MarketContext
		want bool
	}{
		{
			name: "no inception date means not bootstrapping",
			ctx:  &models.MarketContext{AsOf: now},
			want: true,
		},
		{
			name: "fresh portfolio stays in bootstrap",
			ctx: &models.MarketContext{
				AsOf:              now,
				InceptionDate:     now.Add(-24 * time.Hour),
				TotalTrades:       1,
				CurrentAllocation: map[string]float64{"stock": 0.10, "cash": 0.90},
			},
			want: false,
		},
		{
			name: "three trades exit",
			ctx: &models.MarketContext{
				AsOf:              now,
				InceptionDate:     now.Add(-24 * time.Hour),
				TotalTrades:       3,
				CurrentAllocation: map[string]float64{"stock": 0.10, "cash": 0.90},
			},
			want: true,
		},
		{
			name: "thirty percent stock exit",
			ctx: &models.MarketContext{
				AsOf:              now,
				InceptionDate:     now.Add(-24 * time.Hour),
				CurrentAllocation: map[string]float64{"stock": 0.30, "cash": 0.70},
			},
			want: true,
		},
		{
			name: "five day age exit",
			ctx: &models.MarketContext{
				AsOf:              now,
				InceptionDate:     now.Add(-5 * 24 * time.Hour),
				CurrentAllocation: map[string]float64{"stock": 0.10, "cash": 0.90},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.BootstrapExitConditions(tt.ctx); got != tt.want {
				t.Errorf("exit = %v, want %v", got, tt.want)
			}
		})
	}
}
