package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// Client wraps RedLock for leader election + standard Redis for price caching
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
}

// New creates new Redis client with RedLock support + caching
func New(cfg *config.RedisConfig) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses configured")
	}

	// RedLock wants tcp:// URLs; multiple addresses improve fault tolerance
	lockAddrs := make([]string, len(cfg.Addrs))
	for i, addr := range cfg.Addrs {
		lockAddrs[i] = "tcp://" + addr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, lockAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("redis redlock manager initialized",
		zap.Strings("addresses", lockAddrs),
	)

	// Standard client for the spot-price cache
	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addrs[0],
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}

	return &Client{
		lockManager: lockManager,
		cache:       cacheClient,
	}, nil
}

// LeaderLock creates the pipeline leader lock from config
func (c *Client) LeaderLock(cfg *config.RedisConfig) *LeaderLock {
	return NewLeaderLock(c.lockManager, cfg.LeaderKey, cfg.LeaderTTL)
}

// Cache returns the standard Redis client for caching
func (c *Client) Cache() *redis.Client {
	return c.cache
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}

	// RedLock manager has no explicit Close, connections close automatically
	return nil
}

// Health checks redis health
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}
