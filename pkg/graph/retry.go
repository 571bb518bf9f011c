// pkg/graph/retry.go
package graph

import (
	"context"
	"time"
)

// Submitter retries a stage's initial network call when the platform flags it
// transient. This handles *accepting* a request; waiting for side-effecting
// processing of an already-accepted resource is the poller's job, not ours.
type Submitter struct {
	Attempts int
	Delay    time.Duration
	// Sleep is injectable for tests; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewSubmitter(attempts int, delay time.Duration) *Submitter {
	return &Submitter{Attempts: attempts, Delay: delay}
}

// Do invokes call up to Attempts times, backing off linearly (attempt × Delay)
// between transient failures. Non-transient failures abort immediately. The
// last transient error surfaces unchanged when the budget is exhausted.
func (s *Submitter) Do(ctx context.Context, call func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err := call(ctx)
		if err == nil {
			return doc, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.Delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *Submitter) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
