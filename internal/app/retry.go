package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 50 * time.Millisecond
)

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// maxAttempts transient failures have been seen. Waits grow exponentially
// with full jitter and go through the injected clock.
func (s *BookingService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Reject(domain.CodeTimeout, "%s: %v", op, ctx.Err())
			case <-s.clock.After(s.backoff(attempt)):
			}
		}

		err := fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrTransient) {
			return err
		}
		lastErr = err
		s.logger.Warn("transient store failure, retrying",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", s.maxAttempts,
			"error", err,
		)
	}
	return domain.Reject(domain.CodeStoreUnavailable, "%s: %v", op, lastErr)
}

func (s *BookingService) backoff(attempt int) time.Duration {
	ceiling := s.backoffBase << (attempt - 1)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling))) + 1
}

// surface converts whatever a store or engine produced into the single
// typed result callers see.
func surface(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := domain.AsError(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Reject(domain.CodeTimeout, "%v", err)
	}
	return domain.Reject(domain.CodeStoreUnavailable, "%v", err)
}
