package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

const registrationColumns = `id, edition_id, registration_number, email, original_email,
	first_name, last_name, status, is_on_waitinglist, waitinglist_expires,
	reminders_sent, last_notices_sent, action_requests, payments, payment_made,
	payment_required, admin_comments, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (*model.Registration, error) {
	var (
		reg           model.Registration
		status        string
		tags          []string
		payments      []byte
		adminComments []byte
	)
	err := row.Scan(
		&reg.ID, &reg.EditionID, &reg.RegistrationNumber, &reg.Email, &reg.OriginalEmail,
		&reg.FirstName, &reg.LastName, &status, &reg.IsOnWaitinglist, &reg.WaitinglistExpires,
		&reg.RemindersSent, &reg.LastNoticesSent, &tags, &payments, &reg.PaymentMade,
		&reg.PaymentRequired, &adminComments, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.Status = model.Status(status)
	reg.ActionRequests = make([]model.ActionType, 0, len(tags))
	for _, tag := range tags {
		reg.ActionRequests = append(reg.ActionRequests, model.ActionType(tag))
	}
	if err := json.Unmarshal(payments, &reg.Payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	if err := json.Unmarshal(adminComments, &reg.AdminComments); err != nil {
		return nil, fmt.Errorf("decode admin comments: %w", err)
	}
	return &reg, nil
}

// encodedFields holds the non-scalar columns in wire form.
type encodedFields struct {
	tags          []string
	payments      []byte
	adminComments []byte
}

func encodeFields(reg *model.Registration) (encodedFields, error) {
	var enc encodedFields
	enc.tags = make([]string, 0, len(reg.ActionRequests))
	for _, t := range reg.ActionRequests {
		enc.tags = append(enc.tags, string(t))
	}
	payments := reg.Payments
	if payments == nil {
		payments = []model.Payment{}
	}
	var err error
	if enc.payments, err = json.Marshal(payments); err != nil {
		return enc, fmt.Errorf("encode payments: %w", err)
	}
	comments := reg.AdminComments
	if comments == nil {
		comments = []model.AdminComment{}
	}
	if enc.adminComments, err = json.Marshal(comments); err != nil {
		return enc, fmt.Errorf("encode admin comments: %w", err)
	}
	return enc, nil
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Insert creates a new registration row.
func (r *RegistrationRepository) Insert(ctx context.Context, reg *model.Registration) error {
	enc, err := encodeFields(reg)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		reg.ID, reg.EditionID, reg.RegistrationNumber, reg.Email, reg.OriginalEmail,
		reg.FirstName, reg.LastName, string(reg.Status), reg.IsOnWaitinglist, reg.WaitinglistExpires,
		reg.RemindersSent, reg.LastNoticesSent, enc.tags, enc.payments, reg.PaymentMade,
		reg.PaymentRequired, enc.adminComments, reg.CreatedAt, reg.UpdatedAt,
	)
	return wrap("insert registration", err)
}

// Get returns a single registration or ErrNotFound.
func (r *RegistrationRepository) Get(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get registration", err)
	}
	return reg, nil
}

// ListByEdition returns every registration of an edition by number.
func (r *RegistrationRepository) ListByEdition(ctx context.Context, editionID string) ([]model.Registration, error) {
	return r.list(ctx, "list registrations",
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE edition_id = $1
		 ORDER BY registration_number ASC`,
		editionID,
	)
}

// HasActiveWaitinglist reports whether any live registration of the edition
// sits on the waiting list.
func (r *RegistrationRepository) HasActiveWaitinglist(ctx context.Context, editionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM registrations
		    WHERE edition_id = $1
		      AND status IN ('pending', 'confirmed')
		      AND is_on_waitinglist
		 )`,
		editionID,
	).Scan(&exists)
	if err != nil {
		return false, wrap("check waitinglist", err)
	}
	return exists, nil
}

// ListPendingCreatedBefore backs the escalation scans via the
// (status, created_at) index.
func (r *RegistrationRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Registration, error) {
	return r.list(ctx, "list pending registrations",
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE status = 'pending' AND created_at <= $1
		 ORDER BY created_at ASC, id ASC`,
		cutoff,
	)
}

// ListWaitinglistExpired returns live waiting-list registrations past their
// waiting-list expiry.
func (r *RegistrationRepository) ListWaitinglistExpired(ctx context.Context, now time.Time) ([]model.Registration, error) {
	return r.list(ctx, "list expired waitinglist",
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE is_on_waitinglist
		   AND waitinglist_expires <= $1
		   AND status IN ('pending', 'confirmed')
		 ORDER BY created_at ASC, id ASC`,
		now,
	)
}

// Update performs a read-modify-write under SELECT … FOR UPDATE, so
// concurrent updates of the same registration are serialised by the row
// lock instead of overwriting each other.
func (r *RegistrationRepository) Update(ctx context.Context, id string, fn func(*model.Registration) error) (reg *model.Registration, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reg, err = scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrap("lock registration", err)
	}

	if err = fn(reg); err != nil {
		return nil, err
	}
	reg.UpdatedAt = time.Now().UTC()

	enc, err := encodeFields(reg)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE registrations
		    SET email = $2, original_email = $3, first_name = $4, last_name = $5,
		        status = $6, is_on_waitinglist = $7, waitinglist_expires = $8,
		        reminders_sent = $9, last_notices_sent = $10, action_requests = $11,
		        payments = $12, payment_made = $13, admin_comments = $14, updated_at = $15
		  WHERE id = $1`,
		reg.ID, reg.Email, reg.OriginalEmail, reg.FirstName, reg.LastName,
		string(reg.Status), reg.IsOnWaitinglist, reg.WaitinglistExpires,
		reg.RemindersSent, reg.LastNoticesSent, enc.tags,
		enc.payments, reg.PaymentMade, enc.adminComments, reg.UpdatedAt,
	)
	if err != nil {
		return nil, wrap("update registration", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, wrap("commit transaction", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) list(ctx context.Context, op, query string, args ...any) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, wrap(op, rows.Err())
}
