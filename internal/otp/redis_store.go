package otp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stateUnused = "unused"
	stateUsed   = "used"
)

// RedisRecordStore shares challenge state across replicas. Redis expires keys on
// its own, so DeleteExpired has nothing to do.
type RedisRecordStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRecordStore(client *redis.Client, purpose Purpose) *RedisRecordStore {
	return &RedisRecordStore{client: client, prefix: "auth:otp:" + string(purpose) + ":"}
}

func (s *RedisRecordStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}

func (s *RedisRecordStore) Put(ctx context.Context, token string, rec Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	state := stateUnused
	if rec.Used {
		state = stateUsed
	}
	return s.client.Set(ctx, s.key(token), state, ttl).Err()
}

func (s *RedisRecordStore) Get(ctx context.Context, token string) (Record, bool, error) {
	k := s.key(token)
	state, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec := Record{Used: state == stateUsed}
	if ttl, err := s.client.PTTL(ctx, k).Result(); err == nil && ttl > 0 {
		rec.ExpiresAt = time.Now().Add(ttl)
	}
	return rec, true, nil
}

// MarkUsed relies on SET XX GET KEEPTTL: the swap and the read of the previous
// state happen in one command.
func (s *RedisRecordStore) MarkUsed(ctx context.Context, token string) (bool, bool, error) {
	prev, err := s.client.SetArgs(ctx, s.key(token), stateUsed, redis.SetArgs{
		Mode:    "XX",
		Get:     true,
		KeepTTL: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("mark otp used: %w", err)
	}
	return prev == stateUsed, true, nil
}

func (s *RedisRecordStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
