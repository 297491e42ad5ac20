// Package service implements business logic, validation, and orchestration
// between the HTTP/CLI surfaces and the repository layer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/regflow/internal/logging"
	"github.com/Shivanand-hulikatti/regflow/internal/metrics"
)

var (
	// ErrValidation marks bad input. Handlers map it to 400.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyProcessed is returned when an action request was already
	// approved or rejected.
	ErrAlreadyProcessed = errors.New("action request already processed")
)

// Options carries the ambient dependencies shared by every service.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// CallTimeout bounds each store and notifier call. Zero disables it.
	CallTimeout time.Duration
	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time
}

// WithDefaults fills in a discarding logger, private metrics and the UTC
// wall clock where o leaves them unset.
func (o Options) WithDefaults() Options {
	o.Logger = logging.OrDiscard(o.Logger)
	if o.Metrics == nil {
		o.Metrics = metrics.NewNop()
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// CallContext derives the context for a single store or notifier call.
func (o Options) CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.CallTimeout)
}

// CounterKey is the counter that numbers an edition's registrations.
func CounterKey(editionID string) string {
	return "registrations-" + editionID
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
