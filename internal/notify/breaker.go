package notify

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
)

// Breaker stops calling a failing notifier for a while so a broken mail
// backend fails fast instead of stalling every approval and job run.
type Breaker struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. When cfg.Enabled is false next is returned as is.
func NewBreaker(next Notifier, cfg config.BreakerConfig) Notifier {
	if !cfg.Enabled {
		return next
	}
	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A message without a recipient says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRecipient)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Send forwards msg unless the circuit is open.
func (b *Breaker) Send(ctx context.Context, msg Message) (string, error) {
	id, err := b.cb.Execute(func() (any, error) {
		return b.next.Send(ctx, msg)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}
