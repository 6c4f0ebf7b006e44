package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// RedisWriteGuard takes a redislock before the DB transaction so instances queue in
// Redis instead of holding DB connections while waiting on the ledger lock row.
// Reliability never depends on it: the DB lock still serializes writers.
type RedisWriteGuard struct {
	Locker  *redislock.Client
	Logger  *logrus.Logger
	TTL     time.Duration
	MaxWait time.Duration
}

func NewRedisWriteGuard(locker *redislock.Client, logger *logrus.Logger) *RedisWriteGuard {
	return &RedisWriteGuard{Locker: locker, Logger: logger, TTL: 30 * time.Second, MaxWait: 5 * time.Second}
}

func (g *RedisWriteGuard) Acquire(ctx context.Context, key string) func() {
	noop := func() {}
	if g == nil || g.Locker == nil {
		return noop
	}
	retries := int(g.MaxWait / (100 * time.Millisecond))
	lock, err := g.Locker.Obtain(ctx, key, g.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), retries),
	})
	if err != nil {
		if g.Logger != nil {
			msg := "error obtaining redis lock; proceeding without redis lock: " + err.Error()
			if errors.Is(err, redislock.ErrNotObtained) {
				msg = "could not obtain redis lock; proceeding without redis lock"
			}
			g.Logger.WithFields(logrus.Fields{"field": "RedisWriteGuard", "key": key}).Warn(msg)
		}
		return noop
	}
	return func() {
		// release with a fresh context so a cancelled request still frees the key
		if err := lock.Release(context.Background()); err != nil && g.Logger != nil {
			g.Logger.WithFields(logrus.Fields{"field": "RedisWriteGuard", "key": key}).
				Warn("failed to release redis lock: " + err.Error())
		}
	}
}
