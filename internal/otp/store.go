package otp

import (
	"context"
	"sync"
	"time"
)

// Record is the single-use state kept beside each issued challenge token.
type Record struct {
	ExpiresAt time.Time
	Used      bool
}

// RecordStore tracks redemption of issued tokens. MarkUsed must be atomic: it
// reports whether the record was already used before this call flipped it.
type RecordStore interface {
	Put(ctx context.Context, token string, rec Record) error
	Get(ctx context.Context, token string) (Record, bool, error)
	MarkUsed(ctx context.Context, token string) (wasUsed bool, found bool, err error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryRecordStore keeps records in process memory. A restart invalidates every
// outstanding challenge.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

func (s *MemoryRecordStore) Put(_ context.Context, token string, rec Record) error {
	s.mu.Lock()
	s.records[token] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, token string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[token]
	return rec, ok, nil
}

func (s *MemoryRecordStore) MarkUsed(_ context.Context, token string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[token]
	if !ok {
		return false, false, nil
	}
	wasUsed := rec.Used
	rec.Used = true
	s.records[token] = rec
	return wasUsed, true, nil
}

func (s *MemoryRecordStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for tok, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, tok)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryRecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
