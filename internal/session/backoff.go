package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffSchedule wraps cenkalti/backoff/v4's exponential backoff for the
// UDP retry schedule (spec.md §6: 250ms initial, capped at 2s). RCON never
// retries (spec.md §4.4), so entries for that protocol never get one.
type backoffSchedule struct {
	b *backoff.ExponentialBackOff
}

func newBackoffSchedule(initial, max time.Duration) *backoffSchedule {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0 // caller enforces the retry count cap, not elapsed time
	b.Reset()
	return &backoffSchedule{b: b}
}

func (s *backoffSchedule) next() time.Duration {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return s.b.MaxInterval
	}
	return d
}
