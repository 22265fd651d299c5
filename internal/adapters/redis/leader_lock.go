package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// LeaderLock elects one pipeline replica to drive the cycle loop.
// Followers keep retrying TryAcquire and take over when the leader
// dies and its lock expires.
type LeaderLock struct {
	lockManager *redlock.RedLock
	key         string
	ttl         time.Duration
	held        atomic.Bool
}

// NewLeaderLock creates a leader lock on key with the given TTL
func NewLeaderLock(lockManager *redlock.RedLock, key string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{
		lockManager: lockManager,
		key:         key,
		ttl:         ttl,
	}
}

// TryAcquire attempts to take leadership using the Redlock algorithm.
// Returns true if this replica is now the leader, false if another
// replica holds the lock.
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := l.lockManager.Lock(ctx, l.key, l.ttl)
	if err != nil {
		// Lock not acquired, another replica has it
		logger.Debug("leadership held by another replica",
			zap.String("key", l.key),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, nil
	}

	l.held.Store(true)

	logger.Info("👑 pipeline leadership acquired",
		zap.String("key", l.key),
		zap.Duration("ttl", l.ttl),
		zap.Duration("expiry", expiry),
	)

	go l.renew(ctx)

	return true, nil
}

// Held reports whether this replica still believes it is the leader
func (l *LeaderLock) Held() bool {
	return l.held.Load()
}

// Release gives up leadership
func (l *LeaderLock) Release(ctx context.Context) error {
	if !l.held.Load() {
		return nil
	}

	if err := l.lockManager.UnLock(ctx, l.key); err != nil {
		// Lock may have already expired naturally
		logger.Warn("failed to release leader lock",
			zap.String("key", l.key),
			zap.Error(err),
		)
	} else {
		logger.Info("pipeline leadership released",
			zap.String("key", l.key),
		)
	}

	l.held.Store(false)
	return nil
}

// renew extends leadership before the TTL runs out. Redlock has no
// built-in extension, so renewal is release + re-acquire.
func (l *LeaderLock) renew(ctx context.Context) {
	// Renew at 2/3 of TTL to keep a safety margin
	ticker := time.NewTicker((l.ttl * 2) / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("leader lock renewal stopped",
				zap.String("key", l.key),
			)
			return

		case <-ticker.C:
			if !l.held.Load() {
				return
			}

			if err := l.lockManager.UnLock(ctx, l.key); err != nil {
				logger.Error("leader lock renewal failed on unlock",
					zap.String("key", l.key),
					zap.Error(err),
				)
				l.held.Store(false)
				return
			}

			expiry, err := l.lockManager.Lock(ctx, l.key, l.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("leadership lost, another replica may have taken over",
					zap.String("key", l.key),
					zap.Error(err),
				)
				l.held.Store(false)
				return
			}

			logger.Debug("leadership renewed",
				zap.String("key", l.key),
				zap.Duration("expiry", expiry),
			)
		}
	}
}
