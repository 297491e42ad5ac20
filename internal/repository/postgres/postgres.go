// Package postgres implements the repository contracts on PostgreSQL.
// It uses pgx directly (no ORM) for transparency and performance.
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

// Store hands out the per-collection repositories sharing one pool.
type Store struct {
	counters      *CounterRepository
	registrations *RegistrationRepository
	editions      *EditionRepository
	requests      *ActionRequestRepository
	jobLogs       *JobLogRepository
	outbox        *OutboxRepository
}

var _ repository.Store = (*Store)(nil)

// NewStore constructs every repository on db.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		counters:      NewCounterRepository(db),
		registrations: NewRegistrationRepository(db),
		editions:      NewEditionRepository(db),
		requests:      NewActionRequestRepository(db),
		jobLogs:       NewJobLogRepository(db),
		outbox:        NewOutboxRepository(db),
	}
}

func (s *Store) Counters() repository.CounterStore           { return s.counters }
func (s *Store) Registrations() repository.RegistrationStore { return s.registrations }
func (s *Store) Editions() repository.EditionStore           { return s.editions }
func (s *Store) Requests() repository.ActionRequestStore     { return s.requests }
func (s *Store) JobLogs() repository.JobLogStore             { return s.jobLogs }
func (s *Store) Outbox() repository.MailOutbox               { return s.outbox }

// PostgreSQL error codes that mean "try again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// wrap annotates err with op and maps driver errors onto the repository
// sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, repository.ErrConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
