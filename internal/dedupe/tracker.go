package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker remembers which (subject, URL) pairs were already stored, so
// repeated runs can skip them without a datastore round trip.
type Tracker interface {
	Seen(ctx context.Context, subjectID, url string) (bool, error)
	Mark(ctx context.Context, subjectID, url string) error
}

// NopTracker never remembers anything.
type NopTracker struct{}

func (NopTracker) Seen(context.Context, string, string) (bool, error) { return false, nil }
func (NopTracker) Mark(context.Context, string, string) error         { return nil }

// RedisTracker keeps one expiring key per stored (subject, URL) pair.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker creates a tracker. A ttl of 0 keeps keys forever.
func NewRedisTracker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTracker{client: client, ttl: ttl, logger: logger}
}

// Key is the Redis key used for a (subject, URL) pair.
func Key(subjectID, url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("arwatch:seen:%s:%s", subjectID, hex.EncodeToString(sum[:])[:16])
}

func (t *RedisTracker) Seen(ctx context.Context, subjectID, url string) (bool, error) {
	n, err := t.client.Exists(ctx, Key(subjectID, url)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

func (t *RedisTracker) Mark(ctx context.Context, subjectID, url string) error {
	key := Key(subjectID, url)
	if err := t.client.Set(ctx, key, time.Now().UTC().Unix(), t.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	t.logger.Debug("marked url as stored", "subject", subjectID, "url", url, "key", key)
	return nil
}

// Clear forgets every pair recorded for subjectID.
func (t *RedisTracker) Clear(ctx context.Context, subjectID string) (int, error) {
	pattern := fmt.Sprintf("arwatch:seen:%s:*", subjectID)
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := t.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
