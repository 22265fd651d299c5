package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/market"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

const (
	defaultIndexTicker = "SPY"
	defaultVIXTicker   = "^VIX"

	historyDays = 120
	smaFast     = 20
	smaSlow     = 50
	atrPeriod   = 14
	minBars     = smaSlow + atrPeriod

	// vixRiskOff and vixCaution are the constitution's VIX bands
	vixRiskOff = 25.0
	vixCaution = 20.0

	// relative ATR above this marks a downtrend as disorderly
	atrRiskOffRatio = 0.025
)

// Builder derives the prevailing market regime from index history and
// the volatility index.
type Builder struct {
	data        market.DataClient
	indexTicker string
	vixTicker   string
}

// NewBuilder creates a regime builder; empty tickers use SPY and ^VIX
func NewBuilder(data market.DataClient, indexTicker, vixTicker string) *Builder {
	if indexTicker == "" {
		indexTicker = defaultIndexTicker
	}
	if vixTicker == "" {
		vixTicker = defaultVIXTicker
	}
	return &Builder{data: data, indexTicker: indexTicker, vixTicker: vixTicker}
}

// Build snapshots the market regime. Portfolio fields (capital,
// allocation, trade counts) are filled in by the caller.
func (b *Builder) Build(ctx context.Context) (*models.MarketContext, error) {
	vixPrice, err := b.data.GetCurrentPrice(ctx, b.vixTicker)
	if err != nil {
		return nil, fmt.Errorf("failed to read VIX: %w", err)
	}
	vix := models.ToFloat64(vixPrice)

	bars, err := b.data.GetHistory(ctx, b.indexTicker, historyDays)
	if err != nil {
		return nil, fmt.Errorf("failed to read index history: %w", err)
	}
	if len(bars) < minBars {
		return nil, fmt.Errorf("insufficient index history (need at least %d bars, got %d)", minBars, len(bars))
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = models.ToFloat64(bar.Close)
		highs[i] = models.ToFloat64(bar.High)
		lows[i] = models.ToFloat64(bar.Low)
	}

	smaFastVals := indicator.Sma(smaFast, closes)
	smaSlowVals := indicator.Sma(smaSlow, closes)
	_, atr := indicator.Atr(atrPeriod, highs, lows, closes)

	lastClose := closes[len(closes)-1]
	fast := smaFastVals[len(smaFastVals)-1]
	slow := smaSlowVals[len(smaSlowVals)-1]
	atrRatio := atr[len(atr)-1] / lastClose

	regime := classify(vix, lastClose, fast, slow, atrRatio)

	logger.Debug("market regime computed",
		zap.String("regime", string(regime)),
		zap.Float64("vix", vix),
		zap.Float64("close", lastClose),
		zap.Float64("sma_fast", fast),
		zap.Float64("sma_slow", slow),
		zap.Float64("atr_ratio", atrRatio),
	)

	return &models.MarketContext{
		AsOf:              time.Now().UTC(),
		Regime:            regime,
		VIX:               vix,
		CurrentAllocation: make(map[string]float64),
	}, nil
}

// classify applies the VIX bands first, then lets the trend decide
func classify(vix, close, fast, slow, atrRatio float64) models.MarketRegime {
	switch {
	case vix >= vixRiskOff:
		return models.RegimeRiskOff
	case vix >= vixCaution:
		return models.RegimeNeutral
	case close > fast && fast > slow:
		return models.RegimeRiskOn
	case close < fast && fast < slow && atrRatio >= atrRiskOffRatio:
		return models.RegimeRiskOff
	default:
		return models.RegimeNeutral
	}
}
