package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// OutboxRepository writes outbound mail rows for a separate delivery worker.
type OutboxRepository struct {
	db *pgxpool.Pool
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue inserts mail in queued state.
func (r *OutboxRepository) Enqueue(ctx context.Context, mail *model.OutboundMail) error {
	var registrationID *string
	if mail.RegistrationID != "" {
		registrationID = &mail.RegistrationID
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO outbound_mails (id, kind, recipient, registration_id, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mail.ID, mail.Kind, mail.Recipient, registrationID, mail.Payload, mail.Status, mail.CreatedAt,
	)
	return wrap("enqueue mail", err)
}
