package mail

import (
	"context"
	"log"
	"sync"
	"time"

	"adminauth/internal/metrics"
)

// Async sends on a background goroutine and always reports success to the caller.
// Failures are logged and counted, never returned.
type Async struct {
	next    Mailer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Mailer, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Async{next: next, timeout: timeout}
}

func (a *Async) Send(_ context.Context, to string, tmpl Template, fields map[string]string) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// The request context ends with the response; the send must outlive it.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		err := a.next.Send(ctx, to, tmpl, fields)
		metrics.MailDelivery(string(tmpl), err)
		if err != nil {
			log.Printf("WARNING: failed to send %s email: %v", tmpl, err)
		}
	}()
	return nil
}

// Wait blocks until in-flight sends finish or ctx ends.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
