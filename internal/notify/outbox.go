package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

// OutboxNotifier writes messages to the mail outbox. A separate delivery
// worker renders and sends them, so a successful Send means "durably
// queued", not "delivered".
type OutboxNotifier struct {
	outbox repository.MailOutbox
	now    func() time.Time
}

// NewOutboxNotifier constructs an OutboxNotifier.
func NewOutboxNotifier(outbox repository.MailOutbox) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox, now: func() time.Time { return time.Now().UTC() }}
}

type outboxPayload struct {
	Registration    *model.RegistrationSnapshot `json:"registration,omitempty"`
	RegistrationIDs []string                    `json:"registration_ids,omitempty"`
}

// Send queues msg and returns the outbox row id.
func (n *OutboxNotifier) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Recipient == "" {
		return "", ErrNoRecipient
	}
	payload, err := json.Marshal(outboxPayload{
		Registration:    msg.Registration,
		RegistrationIDs: msg.RegistrationIDs,
	})
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", msg.Kind, err)
	}

	mail := &model.OutboundMail{
		ID:        uuid.NewString(),
		Kind:      string(msg.Kind),
		Recipient: msg.Recipient,
		Payload:   payload,
		Status:    "queued",
		CreatedAt: n.now(),
	}
	if msg.Registration != nil {
		mail.RegistrationID = msg.Registration.ID
	}
	if err := n.outbox.Enqueue(ctx, mail); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", msg.Kind, err)
	}
	return mail.ID, nil
}
