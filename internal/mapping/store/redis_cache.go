package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/resilience"
)

// RedisVersionCache keeps the newest version per type in Redis under
// searchmapper:mapping:<index>:<type>. Calls go through a circuit breaker
// so an unreachable Redis degrades to misses instead of slowing parses.
type RedisVersionCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewRedisVersionCache(client *pkgredis.Client, ttl time.Duration) *RedisVersionCache {
	return &RedisVersionCache{
		client: client,
		ttl:    ttl,
		breaker: resilience.NewCircuitBreaker("mapping-version-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			IsFailure: func(err error) bool {
				return !errors.Is(err, apperrors.ErrTypeNotFound)
			},
		}),
		logger: slog.Default().With("component", "mapping-cache"),
	}
}

func versionKey(index, docType string) string {
	return pkgredis.Key("mapping", index, docType)
}

func (c *RedisVersionCache) Version(ctx context.Context, index, docType string) (int64, error) {
	var version int64
	err := c.breaker.Execute(func() error {
		v, err := c.client.GetInt64(ctx, versionKey(index, docType))
		if pkgredis.IsNilError(err) {
			return apperrors.ErrTypeNotFound
		}
		if err != nil {
			return fmt.Errorf("reading mapping version: %w", err)
		}
		version = v
		return nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrTypeNotFound) {
		c.logger.Warn("version cache unavailable", "index", index, "type", docType, "error", err)
		return 0, fmt.Errorf("%w: %w", apperrors.ErrTypeNotFound, err)
	}
	return version, err
}

func (c *RedisVersionCache) SetVersion(ctx context.Context, index, docType string, version int64) error {
	return c.breaker.Execute(func() error {
		if err := c.client.SetMax(ctx, versionKey(index, docType), version, c.ttl); err != nil {
			return fmt.Errorf("caching mapping version %s: %w", strconv.FormatInt(version, 10), err)
		}
		return nil
	})
}

func (c *RedisVersionCache) Invalidate(ctx context.Context, index string) error {
	return c.breaker.Execute(func() error {
		n, err := c.client.FlushByPattern(ctx, pkgredis.Key("mapping", index, "*"))
		if err != nil {
			return err
		}
		c.logger.Info("mapping versions invalidated", "index", index, "keys", n)
		return nil
	})
}
