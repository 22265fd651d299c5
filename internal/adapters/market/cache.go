package market

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// CachedClient caches spot prices in Redis so shadow mark-to-market
// sweeps do not hammer the provider for repeated tickers. History,
// holders and insider reads pass through.
type CachedClient struct {
	inner DataClient
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedClient wraps inner with a Redis spot-price cache
func NewCachedClient(inner DataClient, rdb *redis.Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClient{inner: inner, rdb: rdb, ttl: ttl}
}

func priceKey(ticker string) string {
	return fmt.Sprintf("tradeshield:price:%s", ticker)
}

// GetCurrentPrice serves from cache when fresh; cache failures fall
// through to the provider.
func (c *CachedClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	key := priceKey(ticker)

	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
	} else if err != redis.Nil {
		logger.Debug("price cache read failed", zap.String("ticker", ticker), zap.Error(err))
	}

	price, err := c.inner.GetCurrentPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.rdb.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		logger.Debug("price cache write failed", zap.String("ticker", ticker), zap.Error(err))
	}

	return price, nil
}

// Prime writes a streamed quote into the cache so subsequent reads are
// served without a provider round trip
func (c *CachedClient) Prime(ctx context.Context, quote models.Quote) {
	key := priceKey(quote.Ticker)
	if err := c.rdb.Set(ctx, key, quote.Price.String(), c.ttl).Err(); err != nil {
		logger.Debug("price cache prime failed", zap.String("ticker", quote.Ticker), zap.Error(err))
	}
}

func (c *CachedClient) GetHistory(ctx context.Context, ticker string, days int) ([]models.PriceBar, error) {
	return c.inner.GetHistory(ctx, ticker, days)
}

func (c *CachedClient) GetInstitutionalHolders(ctx context.Context, ticker string) ([]models.InstitutionalHolder, error) {
	return c.inner.GetInstitutionalHolders(ctx, ticker)
}

func (c *CachedClient) GetInsiderTrades(ctx context.Context, ticker string) ([]models.InsiderTrade, error) {
	return c.inner.GetInsiderTrades(ctx, ticker)
}
