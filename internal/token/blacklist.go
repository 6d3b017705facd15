package token

import (
	"context"
	"sync"
	"time"
)

// Blacklist records revoked tokens until they would have expired anyway.
// A zero expiresAt keeps the entry until Remove or Clear.
type Blacklist interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	// Revoke adds token unless it is already listed, in one atomic step. added is
	// false when another caller got there first.
	Revoke(ctx context.Context, token string, expiresAt time.Time) (added bool, err error)
	Contains(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
}

// MemoryBlacklist is a process-local Blacklist. Entries are lost on restart.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Add(_ context.Context, token string, expiresAt time.Time) error {
	b.mu.Lock()
	b.entries[token] = expiresAt
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) Revoke(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[token]; ok {
		return false, nil
	}
	b.entries[token] = expiresAt
	return true, nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	_, ok := b.entries[token]
	b.mu.RUnlock()
	return ok, nil
}

func (b *MemoryBlacklist) Remove(_ context.Context, token string) error {
	b.mu.Lock()
	delete(b.entries, token)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) Clear(_ context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string]time.Time)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) Size(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

// CleanupExpired drops entries whose token has already expired. A token past
// its exp fails verification on its own, so the entry no longer does anything.
func (b *MemoryBlacklist) CleanupExpired(_ context.Context) (int, error) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for tok, exp := range b.entries {
		if !exp.IsZero() && !exp.After(now) {
			delete(b.entries, tok)
			removed++
		}
	}
	return removed, nil
}
