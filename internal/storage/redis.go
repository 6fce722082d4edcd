package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles scrape deduplication and retry bookkeeping.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// hashURL keeps redis keys short and safe regardless of URL contents.
func hashURL(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(h[:])
}

// MarkScraped sets a key with a TTL to prevent immediate re-scraping.
func (s *RedisStore) MarkScraped(ctx context.Context, url string, ttl time.Duration) error {
	key := fmt.Sprintf("scraped:%s", hashURL(url))
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// IsRecentlyScraped checks if a URL has been scraped within the TTL.
func (s *RedisStore) IsRecentlyScraped(ctx context.Context, url string) (bool, error) {
	key := fmt.Sprintf("scraped:%s", hashURL(url))
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// IncrementRetryCount increments the retry counter for a URL.
func (s *RedisStore) IncrementRetryCount(ctx context.Context, url string) (int64, error) {
	key := fmt.Sprintf("retry:%s", hashURL(url))
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Retry counters should not outlive the day's scrape cycle.
	s.client.Expire(ctx, key, 24*time.Hour)
	return count, nil
}

// ClearRetryCount drops the retry counter after a successful scrape.
func (s *RedisStore) ClearRetryCount(ctx context.Context, url string) error {
	key := fmt.Sprintf("retry:%s", hashURL(url))
	return s.client.Del(ctx, key).Err()
}
