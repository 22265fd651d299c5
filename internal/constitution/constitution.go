package constitution

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

//go:embed rules.yaml
var rulesYAML []byte

//go:embed rules.sha256
var pinnedDigest string

// ErrIntegrity means the embedded rule text does not match the pinned
// digest. Non-recoverable: the process must refuse to start.
var ErrIntegrity = errors.New("constitution integrity check failed")

// RiskLimits is rule block 1 (제1조 자본 보존)
type RiskLimits struct {
	ArticleID             string  `yaml:"article_id"`
	Title                 string  `yaml:"title"`
	MaxDailyLossPct       float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct        float64 `yaml:"max_drawdown_pct"`
	CircuitBreakerLossPct float64 `yaml:"circuit_breaker_loss_pct"`
	MaxPositionPct        float64 `yaml:"max_position_pct"`
	MinPositionUSD        float64 `yaml:"min_position_usd"`
	MaxSectorExposurePct  float64 `yaml:"max_sector_exposure_pct"`
	MaxVolatilityPct      float64 `yaml:"max_portfolio_volatility_pct"`
	VIXCaution            float64 `yaml:"vix_caution"`
	VIXDanger             float64 `yaml:"vix_danger"`
	LeverageAllowed       bool    `yaml:"leverage_allowed"`
	OptionsAllowed        bool    `yaml:"options_allowed"`
	ShortingAllowed       bool    `yaml:"shorting_allowed"`
	MarginAllowed         bool    `yaml:"margin_allowed"`
}

// RegimeBand bounds the stock/cash split for one market regime
type RegimeBand struct {
	StockMin float64 `yaml:"stock_min"`
	StockMax float64 `yaml:"stock_max"`
	CashMin  float64 `yaml:"cash_min"`
}

// AllocationRules is rule block 2 (제2조 자산 배분)
type AllocationRules struct {
	ArticleID          string                `yaml:"article_id"`
	Title              string                `yaml:"title"`
	MinCashRatio       float64               `yaml:"min_cash_ratio"`
	MaxStockRatio      float64               `yaml:"max_stock_ratio"`
	RebalanceThreshold float64               `yaml:"rebalance_threshold"`
	Regimes            map[string]RegimeBand `yaml:"regimes"`
}

// TradingConstraints is rule block 3 (제3조 거래 규율)
type TradingConstraints struct {
	ArticleID                 string  `yaml:"article_id"`
	Title                     string  `yaml:"title"`
	MaxTradesPerDay           int     `yaml:"max_trades_per_day"`
	MaxTradesPerWeek          int     `yaml:"max_trades_per_week"`
	MinHoldingHours           int     `yaml:"min_holding_hours"`
	MinOrderUSD               float64 `yaml:"min_order_usd"`
	MaxOrderUSD               float64 `yaml:"max_order_usd"`
	AbsoluteCapUnderUSD       float64 `yaml:"absolute_cap_under_usd"`
	MaxOrderCapitalPct        float64 `yaml:"max_order_capital_pct"`
	MaxVolumeParticipationPct float64 `yaml:"max_volume_participation_pct"`
	MinDailyVolumeUSD         float64 `yaml:"min_daily_volume_usd"`
	HumanApprovalRequired     bool    `yaml:"human_approval_required"`
	MarketHoursOnly           bool    `yaml:"market_hours_only"`
}

// BootstrapRules suspends allocation bounds during early portfolio
// formation (부칙)
type BootstrapRules struct {
	ArticleID     string  `yaml:"article_id"`
	MinTrades     int     `yaml:"min_trades"`
	MinStockRatio float64 `yaml:"min_stock_ratio"`
	MaxAgeDays    int     `yaml:"max_age_days"`
}

// Rules holds every parsed rule block. Values are never mutated after
// load.
type Rules struct {
	Version    int                `yaml:"version"`
	Risk       RiskLimits         `yaml:"risk_limits"`
	Allocation AllocationRules    `yaml:"allocation_rules"`
	Trading    TradingConstraints `yaml:"trading_constraints"`
	Bootstrap  BootstrapRules     `yaml:"bootstrap"`
}

// Constitution gates every candidate proposal against the rule blocks.
// It is stateless: validation reads the rules and the supplied context,
// nothing else.
type Constitution struct {
	rules Rules
}

// VerifyIntegrity compares the SHA-256 of the embedded rule text with
// the pinned digest
func VerifyIntegrity() error {
	fields := strings.Fields(pinnedDigest)
	if len(fields) == 0 {
		return fmt.Errorf("%w: pinned digest missing", ErrIntegrity)
	}
	want := strings.ToLower(fields[0])

	sum := sha256.Sum256(rulesYAML)
	got := hex.EncodeToString(sum[:])

	if got != want {
		return fmt.Errorf("%w: rule text digest %s does not match pinned %s", ErrIntegrity, got, want)
	}

	return nil
}

// New verifies rule integrity and parses the embedded rule blocks
func New() (*Constitution, error) {
	if err := VerifyIntegrity(); err != nil {
		return nil, err
	}

	var rules Rules
	if err := yaml.Unmarshal(rulesYAML, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse constitution rules: %w", err)
	}

	c := &Constitution{rules: rules}

	logger.Info("✅ Constitution loaded",
		zap.Int("version", rules.Version),
		zap.String("digest", c.Digest()[:12]),
	)

	return c, nil
}

// Digest returns the hex SHA-256 of the embedded rule text
func (c *Constitution) Digest() string {
	sum := sha256.Sum256(rulesYAML)
	return hex.EncodeToString(sum[:])
}

// Rules returns the parsed rule blocks
func (c *Constitution) Rules() Rules {
	return c.rules
}

// MinHoldingPeriod returns the constitutional minimum hold time
func (c *Constitution) MinHoldingPeriod() time.Duration {
	return time.Duration(c.rules.Trading.MinHoldingHours) * time.Hour
}

// cite renders a rule identifier like "제1조 4항"
func cite(articleID string, clause int) string {
	return fmt.Sprintf("%s %d항", articleID, clause)
}
