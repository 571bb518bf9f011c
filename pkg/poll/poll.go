// pkg/poll/poll.go
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the classified processing state of an asynchronously-processed
// remote resource (media container, account-level video).
type Status int

const (
	Pending Status = iota
	Finished
	Error
)

// Classify maps the platform's status_code field onto Status. Unknown values
// count as pending; the budget bounds how long we humor them.
func Classify(code string) Status {
	switch code {
	case "FINISHED", "ready":
		return Finished
	case "ERROR":
		return Error
	default: // IN_PROGRESS, PUBLISHED pending states, empty
		return Pending
	}
}

var (
	// ErrProcessingFailed: the resource reached a terminal ERROR state.
	ErrProcessingFailed = errors.New("poll: media failed to process")
	// ErrTimeout: the attempt budget was exhausted while still pending.
	ErrTimeout = errors.New("poll: media not ready after maximum attempts")
)

// StatusFunc fetches the current processing status of the watched resource.
type StatusFunc func(ctx context.Context) (Status, error)

// Waiter blocks until an already-accepted resource finishes platform-side
// processing. It is not a submission retry loop: fetch errors are surfaced
// immediately, never retried here.
type Waiter struct {
	Attempts int
	Interval time.Duration
}

func NewWaiter(attempts int, interval time.Duration) *Waiter {
	return &Waiter{Attempts: attempts, Interval: interval}
}

// Wait polls fetch on a fixed interval until the resource is Finished, it
// reports Error, the attempt budget runs out, or ctx is cancelled. Waiting
// honors ctx between polls so a cancelled run does not sit out its budget.
func (w *Waiter) Wait(ctx context.Context, fetch StatusFunc) error {
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		st, err := fetch(ctx)
		if err != nil {
			return fmt.Errorf("poll: status fetch: %w", err)
		}
		switch st {
		case Finished:
			return nil
		case Error:
			return ErrProcessingFailed
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(w.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return ErrTimeout
}
