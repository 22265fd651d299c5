package constitution

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// violationSet accumulates violations and deduplicates cited articles
// in first-seen order
type violationSet struct {
	violations []string
	articles   []string
	seen       map[string]bool
}

func (s *violationSet) add(message, article string) {
	s.violations = append(s.violations, message)
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if !s.seen[article] {
		s.seen[article] = true
		s.articles = append(s.articles, article)
	}
}

// ValidateProposal runs every rule block against the proposal. It is a
// pure function of its arguments: same inputs produce the same
// violations and the same cited-article set. skipAllocation suspends
// the per-regime allocation bounds (bootstrap portfolios, see
// BootstrapExitConditions).
func (c *Constitution) ValidateProposal(p *models.Proposal, ctx *models.MarketContext, skipAllocation bool) models.ValidationResult {
	set := &violationSet{}

	c.checkPositionSize(p, ctx, set)
	if !skipAllocation && len(ctx.CurrentAllocation) > 0 {
		c.checkAllocation(ctx, set)
	}
	c.checkTradeFrequency(ctx, set)
	c.checkOrderSize(p, ctx, set)
	c.checkHumanApproval(p, set)
	c.checkCircuitBreaker(ctx, set)

	return models.ValidationResult{
		IsValid:       len(set.violations) == 0,
		Violations:    set.violations,
		CitedArticles: set.articles,
	}
}

// checkPositionSize enforces the single-position cap and the minimum
// position (제1조 4항, 5항)
func (c *Constitution) checkPositionSize(p *models.Proposal, ctx *models.MarketContext, set *violationSet) {
	risk := c.rules.Risk

	if !ctx.TotalCapital.IsPositive() {
		set.add("총자본 정보 없음", cite(risk.ArticleID, 4))
		return
	}

	pct := p.PositionValue.Div(ctx.TotalCapital).Mul(hundred)
	limit := decimal.NewFromFloat(risk.MaxPositionPct)
	if pct.GreaterThan(limit) {
		set.add(
			fmt.Sprintf("포지션 크기 초과 (%s%% > %s%%)", pct.StringFixed(1), limit.StringFixed(1)),
			cite(risk.ArticleID, 4),
		)
	}

	if p.PositionValue.LessThan(decimal.NewFromFloat(risk.MinPositionUSD)) {
		set.add(
			fmt.Sprintf("최소 포지션 미달 ($%s < $%.0f)", p.PositionValue.StringFixed(0), risk.MinPositionUSD),
			cite(risk.ArticleID, 5),
		)
	}
}

// checkAllocation enforces the per-regime stock/cash bands, falling
// back to the global bounds when the regime is unknown (제2조)
func (c *Constitution) checkAllocation(ctx *models.MarketContext, set *violationSet) {
	alloc := c.rules.Allocation
	stock := ctx.StockRatio()
	cash := ctx.CashRatio()

	band, ok := alloc.Regimes[string(ctx.Regime)]
	if !ok {
		if stock > alloc.MaxStockRatio {
			set.add(
				fmt.Sprintf("주식 비중 상한 초과 (%.0f%% > %.0f%%)", stock*100, alloc.MaxStockRatio*100),
				cite(alloc.ArticleID, 2),
			)
		}
		if cash < alloc.MinCashRatio {
			set.add(
				fmt.Sprintf("현금 비중 하한 미달 (%.0f%% < %.0f%%)", cash*100, alloc.MinCashRatio*100),
				cite(alloc.ArticleID, 1),
			)
		}
		return
	}

	if stock < band.StockMin {
		set.add(
			fmt.Sprintf("주식 비중 하한 미달 (%.0f%% < %.0f%%, %s)", stock*100, band.StockMin*100, ctx.Regime),
			cite(alloc.ArticleID, 4),
		)
	}
	if stock > band.StockMax {
		set.add(
			fmt.Sprintf("주식 비중 상한 초과 (%.0f%% > %.0f%%, %s)", stock*100, band.StockMax*100, ctx.Regime),
			cite(alloc.ArticleID, 4),
		)
	}
	if cash < band.CashMin {
		set.add(
			fmt.Sprintf("현금 비중 하한 미달 (%.0f%% < %.0f%%, %s)", cash*100, band.CashMin*100, ctx.Regime),
			cite(alloc.ArticleID, 4),
		)
	}
}

// checkTradeFrequency enforces the daily and weekly trade caps
// (제3조 1항, 2항)
func (c *Constitution) checkTradeFrequency(ctx *models.MarketContext, set *violationSet) {
	trading := c.rules.Trading

	if ctx.DailyTrades >= trading.MaxTradesPerDay {
		set.add(
			fmt.Sprintf("일일 거래 한도 초과 (%d/%d회)", ctx.DailyTrades, trading.MaxTradesPerDay),
			cite(trading.ArticleID, 1),
		)
	}
	if ctx.WeeklyTrades >= trading.MaxTradesPerWeek {
		set.add(
			fmt.Sprintf("주간 거래 한도 초과 (%d/%d회)", ctx.WeeklyTrades, trading.MaxTradesPerWeek),
			cite(trading.ArticleID, 2),
		)
	}
}

// checkOrderSize enforces the absolute order bounds, the %-of-capital
// cap, volume participation and the liquidity floor (제3조 4항-7항).
// The absolute upper cap only binds portfolios below the configured
// capital threshold.
func (c *Constitution) checkOrderSize(p *models.Proposal, ctx *models.MarketContext, set *violationSet) {
	trading := c.rules.Trading
	order := p.OrderValue

	if order.LessThan(decimal.NewFromFloat(trading.MinOrderUSD)) {
		set.add(
			fmt.Sprintf("최소 주문 금액 미달 ($%s < $%.0f)", order.StringFixed(0), trading.MinOrderUSD),
			cite(trading.ArticleID, 4),
		)
	}

	smallPortfolio := ctx.TotalCapital.IsPositive() &&
		ctx.TotalCapital.LessThan(decimal.NewFromFloat(trading.AbsoluteCapUnderUSD))
	if smallPortfolio && order.GreaterThan(decimal.NewFromFloat(trading.MaxOrderUSD)) {
		set.add(
			fmt.Sprintf("주문 금액 상한 초과 ($%s > $%.0f)", order.StringFixed(0), trading.MaxOrderUSD),
			cite(trading.ArticleID, 4),
		)
	}

	if ctx.TotalCapital.IsPositive() {
		pct := order.Div(ctx.TotalCapital).Mul(hundred)
		limit := decimal.NewFromFloat(trading.MaxOrderCapitalPct)
		if pct.GreaterThan(limit) {
			set.add(
				fmt.Sprintf("자본 대비 주문 비중 초과 (%s%% > %s%%)", pct.StringFixed(1), limit.StringFixed(0)),
				cite(trading.ArticleID, 5),
			)
		}
	}

	if !ctx.DailyVolumeUSD.IsPositive() {
		set.add("일일 거래량 정보 없음", cite(trading.ArticleID, 7))
		return
	}
	participation := order.Div(ctx.DailyVolumeUSD).Mul(hundred)
	if participation.GreaterThan(decimal.NewFromFloat(trading.MaxVolumeParticipationPct)) {
		set.add(
			fmt.Sprintf("거래량 참여율 초과 (%s%% > %.0f%%)", participation.StringFixed(2), trading.MaxVolumeParticipationPct),
			cite(trading.ArticleID, 6),
		)
	}
	if ctx.DailyVolumeUSD.LessThan(decimal.NewFromFloat(trading.MinDailyVolumeUSD)) {
		set.add(
			fmt.Sprintf("일일 거래량 부족 ($%s < $%.0f)", ctx.DailyVolumeUSD.StringFixed(0), trading.MinDailyVolumeUSD),
			cite(trading.ArticleID, 7),
		)
	}
}

// checkHumanApproval fails proposals that were not cleared by the
// operator while policy demands it (제3조 8항)
func (c *Constitution) checkHumanApproval(p *models.Proposal, set *violationSet) {
	if c.rules.Trading.HumanApprovalRequired && !p.IsApproved {
		set.add("인간 승인 필요", cite(c.rules.Trading.ArticleID, 8))
	}
}

// checkCircuitBreaker is the block 1 + block 3 cross-check: tripped
// breakers forbid new entries (제1조 2항, 3항, 8항)
func (c *Constitution) checkCircuitBreaker(ctx *models.MarketContext, set *violationSet) {
	risk := c.rules.Risk

	if math.Abs(ctx.DailyLossPct) >= risk.CircuitBreakerLossPct {
		set.add(
			fmt.Sprintf("일일 손실 서킷 브레이커 발동 (%.1f%% ≥ %.1f%%), 24시간 신규 진입 금지", math.Abs(ctx.DailyLossPct), risk.CircuitBreakerLossPct),
			cite(risk.ArticleID, 3),
		)
	}
	if math.Abs(ctx.DrawdownPct) >= risk.MaxDrawdownPct {
		set.add(
			fmt.Sprintf("최대 낙폭 초과 (%.1f%% ≥ %.1f%%), 24시간 신규 진입 금지", math.Abs(ctx.DrawdownPct), risk.MaxDrawdownPct),
			cite(risk.ArticleID, 2),
		)
	}
	if ctx.VIX >= risk.VIXDanger {
		set.add(
			fmt.Sprintf("VIX %.0f 초과, 방어 모드", risk.VIXDanger),
			cite(risk.ArticleID, 8),
		)
	}
}

// CircuitBreakerTripped reports whether the market state forbids new
// entries, with the operator-facing cause
func (c *Constitution) CircuitBreakerTripped(ctx *models.MarketContext) (bool, string) {
	risk := c.rules.Risk

	switch {
	case math.Abs(ctx.DailyLossPct) >= risk.CircuitBreakerLossPct:
		return true, fmt.Sprintf("일일 손실 %.1f%% ≥ %.1f%%", math.Abs(ctx.DailyLossPct), risk.CircuitBreakerLossPct)
	case math.Abs(ctx.DrawdownPct) >= risk.MaxDrawdownPct:
		return true, fmt.Sprintf("낙폭 %.1f%% ≥ %.1f%%", math.Abs(ctx.DrawdownPct), risk.MaxDrawdownPct)
	case ctx.VIX >= risk.VIXDanger:
		return true, fmt.Sprintf("VIX %.0f 초과, 방어 모드", risk.VIXDanger)
	}

	return false, ""
}

// BootstrapExitConditions reports whether the portfolio has left the
// bootstrap phase: enough trades, enough stock exposure, or enough age.
// Re-evaluated on every call; a zero inception date means the portfolio
// was never in bootstrap.
func (c *Constitution) BootstrapExitConditions(ctx *models.MarketContext) bool {
	if ctx.InceptionDate.IsZero() {
		return true
	}

	boot := c.rules.Bootstrap
	if ctx.TotalTrades >= boot.MinTrades {
		return true
	}
	if ctx.StockRatio() >= boot.MinStockRatio {
		return true
	}
	age := ctx.AsOf.Sub(ctx.InceptionDate)
	return age >= time.Duration(boot.MaxAgeDays)*24*time.Hour
}
