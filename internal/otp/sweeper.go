package otp

import (
	"context"
	"log"
	"time"
)

// Cleaner is anything holding expirable in-memory state.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper calls CleanupExpired on every target once per interval until its context ends.
type Sweeper struct {
	interval time.Duration
	targets  map[string]Cleaner
}

func NewSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{interval: interval, targets: make(map[string]Cleaner)}
}

func (s *Sweeper) Add(name string, c Cleaner) *Sweeper {
	s.targets[name] = c
	return s
}

// Run blocks; start it on its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for name, c := range s.targets {
		removed, err := c.CleanupExpired(ctx)
		if err != nil {
			log.Printf("sweeper: cleanup %s failed: %v", name, err)
			continue
		}
		if removed > 0 {
			log.Printf("sweeper: removed %d expired %s entries", removed, name)
		}
	}
}
