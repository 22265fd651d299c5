package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// BreakerClient shields the pipeline from a flapping data provider.
// While the breaker is open every call fails fast with
// gobreaker.ErrOpenState instead of waiting out HTTP timeouts.
type BreakerClient struct {
	inner DataClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner; the breaker opens after maxFailures
// consecutive failures and half-opens after cooldown.
func NewBreakerClient(inner DataClient, maxFailures uint32, cooldown time.Duration) *BreakerClient {
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:    "market-data",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("⚠️ Market data breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerClient{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetCurrentPrice(ctx, ticker)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (b *BreakerClient) GetHistory(ctx context.Context, ticker string, days int) ([]models.PriceBar, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetHistory(ctx, ticker, days)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.PriceBar), nil
}

func (b *BreakerClient) GetInstitutionalHolders(ctx context.Context, ticker string) ([]models.InstitutionalHolder, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetInstitutionalHolders(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.InstitutionalHolder), nil
}

func (b *BreakerClient) GetInsiderTrades(ctx context.Context, ticker string) ([]models.InsiderTrade, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetInsiderTrades(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.InsiderTrade), nil
}

// State exposes the current breaker state for health reporting
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
