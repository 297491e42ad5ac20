package notify

import (
	"context"
	"log/slog"

	"github.com/Shivanand-hulikatti/regflow/internal/logging"
	"github.com/Shivanand-hulikatti/regflow/internal/metrics"
)

// Instrumented logs and counts every send attempt of the wrapped notifier.
type Instrumented struct {
	next    Notifier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Instrument wraps next. A nil logger or metrics set is replaced by a no-op.
func Instrument(next Notifier, logger *slog.Logger, m *metrics.Metrics) *Instrumented {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Instrumented{next: next, logger: logging.OrDiscard(logger), metrics: m}
}

// Send forwards msg and records the result.
func (n *Instrumented) Send(ctx context.Context, msg Message) (string, error) {
	id, err := n.next.Send(ctx, msg)
	if err != nil {
		n.metrics.Notifications.WithLabelValues(string(msg.Kind), "error").Inc()
		n.logger.Warn("notification failed",
			"kind", msg.Kind,
			"recipient", msg.Recipient,
			"error", err,
		)
		return "", err
	}
	n.metrics.Notifications.WithLabelValues(string(msg.Kind), "ok").Inc()
	n.logger.Debug("notification queued", "kind", msg.Kind, "mail_id", id)
	return id, nil
}
