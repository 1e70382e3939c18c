package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"caderninho/backend/internal/domain"
)

type RedisSummaryCache struct {
	client redis.UniversalClient
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

// NewRedisSummaryCacheWithClient wraps an existing client.
func NewRedisSummaryCacheWithClient(client redis.UniversalClient) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Get(ctx context.Context, businessID string) (*domain.LedgerSummary, bool, error) {
	val, err := c.client.Get(ctx, SummaryKey(businessID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.LedgerSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, businessID string, value *domain.LedgerSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, SummaryKey(businessID), payload, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, businessID string) error {
	return c.client.Del(ctx, SummaryKey(businessID)).Err()
}
