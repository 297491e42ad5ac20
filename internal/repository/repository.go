// Package repository declares the persistence contracts for the registration
// system. The postgres subpackage implements them with pgx; the memory
// subpackage keeps everything in process for development and tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write lost a race or a serialization check
// and may be retried.
var ErrConflict = errors.New("conflict")

// ErrNotPending is returned when an action request was already processed.
var ErrNotPending = errors.New("action request is not pending")

// CounterStore holds one monotonic counter per key.
type CounterStore interface {
	// AllocateNext atomically increments the counter for key and returns the
	// new value. An absent counter starts at 1.
	AllocateNext(ctx context.Context, key string) (int64, error)
	// ReadCurrent returns the last allocated value without locking. It may
	// be stale and must not drive allocation.
	ReadCurrent(ctx context.Context, key string) (int64, error)
}

// RegistrationStore persists registrations.
type RegistrationStore interface {
	Insert(ctx context.Context, reg *model.Registration) error
	Get(ctx context.Context, id string) (*model.Registration, error)
	ListByEdition(ctx context.Context, editionID string) ([]model.Registration, error)
	// HasActiveWaitinglist reports whether the edition has a pending or
	// confirmed registration on the waiting list.
	HasActiveWaitinglist(ctx context.Context, editionID string) (bool, error)
	// ListPendingCreatedBefore returns pending registrations created at or
	// before cutoff, across all editions.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Registration, error)
	// ListWaitinglistExpired returns non-terminal waiting-list registrations
	// whose waiting-list expiry is at or before now.
	ListWaitinglistExpired(ctx context.Context, now time.Time) ([]model.Registration, error)
	// Update runs fn against the current record under a row lock and
	// persists the result. UpdatedAt is refreshed on every successful call.
	Update(ctx context.Context, id string, fn func(*model.Registration) error) (*model.Registration, error)
}

// ActionRequestStore persists the approval queue.
type ActionRequestStore interface {
	// Raise inserts req and adds its type to the registration's tag set in
	// one atomic step. created is false when a request of the same type
	// already exists for the registration.
	Raise(ctx context.Context, req *model.ActionRequest) (created bool, err error)
	Get(ctx context.Context, id string) (*model.ActionRequest, error)
	// ListPending returns pending requests oldest first. An empty actionType
	// matches every type.
	ListPending(ctx context.Context, actionType model.ActionType) ([]model.ActionRequest, error)
	// MarkActed moves a pending request to status. It returns ErrNotPending
	// if the request was already processed.
	MarkActed(ctx context.Context, id string, status model.RequestStatus, actedAt time.Time) error
}

// JobLogStore persists the daily job audit records.
type JobLogStore interface {
	// Write stores entry, replacing an earlier run on the same day.
	Write(ctx context.Context, entry model.DailyJobLog) error
	Get(ctx context.Context, day, jobName string) (*model.DailyJobLog, error)
	ListByDay(ctx context.Context, day string) ([]model.DailyJobLog, error)
}

// EditionStore persists edition configuration.
type EditionStore interface {
	Create(ctx context.Context, edition *model.Edition) error
	Get(ctx context.Context, id string) (*model.Edition, error)
	List(ctx context.Context) ([]model.Edition, error)
}

// MailOutbox queues outbound mail for delivery by another process.
type MailOutbox interface {
	Enqueue(ctx context.Context, mail *model.OutboundMail) error
}

// Store bundles every contract so a single driver can be passed around.
type Store interface {
	Counters() CounterStore
	Registrations() RegistrationStore
	Editions() EditionStore
	Requests() ActionRequestStore
	JobLogs() JobLogStore
	Outbox() MailOutbox
}
