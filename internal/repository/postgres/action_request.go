package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

const actionRequestColumns = `id, registration_id, email, type, reason, status, created_at, acted_at`

func scanActionRequest(row scanner) (*model.ActionRequest, error) {
	var (
		req    model.ActionRequest
		typ    string
		status string
	)
	if err := row.Scan(&req.ID, &req.RegistrationID, &req.Email, &typ, &req.Reason, &status, &req.CreatedAt, &req.ActedAt); err != nil {
		return nil, err
	}
	req.Type = model.ActionType(typ)
	req.Status = model.RequestStatus(status)
	return &req, nil
}

// ActionRequestRepository handles persistence for the approval queue.
type ActionRequestRepository struct {
	db *pgxpool.Pool
}

// NewActionRequestRepository constructs an ActionRequestRepository.
func NewActionRequestRepository(db *pgxpool.Pool) *ActionRequestRepository {
	return &ActionRequestRepository{db: db}
}

// Raise inserts the request and tags the registration in one transaction.
// The unique (registration_id, type) index turns a racing duplicate into a
// harmless no-op instead of a second request.
func (r *ActionRequestRepository) Raise(ctx context.Context, req *model.ActionRequest) (created bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, wrap("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO action_requests (`+actionRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (registration_id, type) DO NOTHING`,
		req.ID, req.RegistrationID, req.Email, string(req.Type), req.Reason,
		string(req.Status), req.CreatedAt, req.ActedAt,
	)
	if err != nil {
		return false, wrap("insert action request", err)
	}
	created = tag.RowsAffected() == 1

	_, err = tx.Exec(ctx,
		`UPDATE registrations
		    SET action_requests = array_append(action_requests, $2),
		        updated_at = now()
		  WHERE id = $1 AND NOT ($2 = ANY(action_requests))`,
		req.RegistrationID, string(req.Type),
	)
	if err != nil {
		return false, wrap("tag registration", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, wrap("commit transaction", err)
	}
	return created, nil
}

// Get returns a single request or ErrNotFound.
func (r *ActionRequestRepository) Get(ctx context.Context, id string) (*model.ActionRequest, error) {
	req, err := scanActionRequest(r.db.QueryRow(ctx,
		`SELECT `+actionRequestColumns+` FROM action_requests WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get action request", err)
	}
	return req, nil
}

// ListPending returns pending requests oldest first.
func (r *ActionRequestRepository) ListPending(ctx context.Context, actionType model.ActionType) ([]model.ActionRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+actionRequestColumns+`
		 FROM action_requests
		 WHERE status = 'pending' AND ($1 = '' OR type = $1)
		 ORDER BY created_at ASC, id ASC`,
		string(actionType),
	)
	if err != nil {
		return nil, wrap("list action requests", err)
	}
	defer rows.Close()

	var reqs []model.ActionRequest
	for rows.Next() {
		req, err := scanActionRequest(rows)
		if err != nil {
			return nil, wrap("scan action request", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, wrap("list action requests", rows.Err())
}

// MarkActed closes a pending request. The status guard in the WHERE clause
// keeps a request from being closed twice.
func (r *ActionRequestRepository) MarkActed(ctx context.Context, id string, status model.RequestStatus, actedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE action_requests
		    SET status = $2, acted_at = $3
		  WHERE id = $1 AND status = 'pending'`,
		id, string(status), actedAt,
	)
	if err != nil {
		return wrap("mark action request", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return repository.ErrNotPending
}
