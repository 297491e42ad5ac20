// Package notify defines the outbound notification contract and its
// implementations. Templating and delivery happen elsewhere; this package
// only hands a message off and returns a reference for the audit trail.
package notify

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// Kind selects the message template.
type Kind string

const (
	KindWelcome                 Kind = "welcome"
	KindWaitinglistRegistration Kind = "waitinglist_registration"
	KindReminder                Kind = "reminder"
	KindLastNotice              Kind = "last_notice"
	KindExpiration              Kind = "expiration"
	KindAdminSummary            Kind = "admin_summary"
)

// ErrNoRecipient is returned when a message has nobody to go to.
var ErrNoRecipient = errors.New("notification has no recipient")

// Message is what a notifier receives.
type Message struct {
	Kind      Kind
	Recipient string
	// Registration is set for participant-facing kinds.
	Registration *model.RegistrationSnapshot
	// RegistrationIDs lists the subjects of an admin summary.
	RegistrationIDs []string
}

// ForRegistration builds a participant message addressed to the
// registration's contact email.
func ForRegistration(kind Kind, reg *model.Registration) Message {
	snap := reg.Snapshot()
	return Message{Kind: kind, Recipient: snap.Email, Registration: &snap}
}

// Notifier enqueues a message and returns an opaque id for audit linking.
type Notifier interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) (string, error)

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}
