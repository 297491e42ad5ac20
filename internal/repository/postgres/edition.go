package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// EditionRepository handles persistence for editions.
type EditionRepository struct {
	db *pgxpool.Pool
}

// NewEditionRepository constructs an EditionRepository.
func NewEditionRepository(db *pgxpool.Pool) *EditionRepository {
	return &EditionRepository{db: db}
}

// Create inserts a new edition.
func (r *EditionRepository) Create(ctx context.Context, e *model.Edition) error {
	admins := e.AdminEmails
	if admins == nil {
		admins = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO editions (id, name, payment_required, max_participants, waitinglist_days, admin_emails, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Name, e.PaymentRequired, e.MaxParticipants, e.WaitinglistDays, admins, e.CreatedAt,
	)
	return wrap("insert edition", err)
}

// List returns all editions ordered by creation time descending.
func (r *EditionRepository) List(ctx context.Context) ([]model.Edition, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, payment_required, max_participants, waitinglist_days, admin_emails, created_at
		 FROM editions
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, wrap("list editions", err)
	}
	defer rows.Close()

	var editions []model.Edition
	for rows.Next() {
		var e model.Edition
		if err := rows.Scan(&e.ID, &e.Name, &e.PaymentRequired, &e.MaxParticipants, &e.WaitinglistDays, &e.AdminEmails, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edition: %w", err)
		}
		editions = append(editions, e)
	}
	return editions, wrap("list editions", rows.Err())
}

// Get returns a single edition or ErrNotFound.
func (r *EditionRepository) Get(ctx context.Context, id string) (*model.Edition, error) {
	var e model.Edition
	err := r.db.QueryRow(ctx,
		`SELECT id, name, payment_required, max_participants, waitinglist_days, admin_emails, created_at
		 FROM editions WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.PaymentRequired, &e.MaxParticipants, &e.WaitinglistDays, &e.AdminEmails, &e.CreatedAt)
	if err != nil {
		return nil, wrap("get edition", err)
	}
	return &e, nil
}
