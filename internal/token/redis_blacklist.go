package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultBlacklistPrefix = "auth:blacklist:"

// RedisBlacklist shares revocations between instances. Keys carry a TTL equal to
// the token's remaining lifetime, so Redis does the sweeping.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisBlacklist(client *redis.Client, prefix string) *RedisBlacklist {
	if prefix == "" {
		prefix = defaultBlacklistPrefix
	}
	return &RedisBlacklist{client: client, prefix: prefix, now: time.Now}
}

func (b *RedisBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + hex.EncodeToString(sum[:])
}

func (b *RedisBlacklist) ttl(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	if ttl := expiresAt.Sub(b.now()); ttl > 0 {
		return ttl
	}
	return time.Minute
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, expiresAt time.Time) error {
	if err := b.client.Set(ctx, b.key(token), "1", b.ttl(expiresAt)).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// Revoke relies on SET NX, so concurrent callers on any instance see exactly one winner.
func (b *RedisBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	added, err := b.client.SetNX(ctx, b.key(token), "1", b.ttl(expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return added, nil
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBlacklist) Remove(ctx context.Context, token string) error {
	return b.client.Del(ctx, b.key(token)).Err()
}

func (b *RedisBlacklist) Clear(ctx context.Context) error {
	return b.scan(ctx, func(keys []string) error {
		return b.client.Del(ctx, keys...).Err()
	})
}

func (b *RedisBlacklist) Size(ctx context.Context) (int, error) {
	total := 0
	err := b.scan(ctx, func(keys []string) error {
		total += len(keys)
		return nil
	})
	return total, err
}

func (b *RedisBlacklist) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("scan blacklist: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
