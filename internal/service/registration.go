package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/notify"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

const (
	defaultAllocateAttempts = 5
	defaultAllocateInterval = 50 * time.Millisecond
)

// RegistrationService owns the registration lifecycle: numbering, waiting
// list placement, payments and status transitions.
type RegistrationService struct {
	counters      repository.CounterStore
	registrations repository.RegistrationStore
	editions      repository.EditionStore
	notifier      notify.Notifier
	alloc         config.AllocationConfig
	opts          Options
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(store repository.Store, notifier notify.Notifier, alloc config.AllocationConfig, opts Options) *RegistrationService {
	if alloc.MaxAttempts == 0 {
		alloc.MaxAttempts = defaultAllocateAttempts
	}
	if alloc.InitialInterval <= 0 {
		alloc.InitialInterval = defaultAllocateInterval
	}
	return &RegistrationService{
		counters:      store.Counters(),
		registrations: store.Registrations(),
		editions:      store.Editions(),
		notifier:      notifier,
		alloc:         alloc,
		opts:          opts.WithDefaults(),
	}
}

// CreateResult is the outcome of Create. The registration exists whenever
// the result is non-nil; NotificationError reports a failed welcome notice.
type CreateResult struct {
	Registration      *model.Registration `json:"registration"`
	NotificationID    string              `json:"notification_id,omitempty"`
	NotificationError string              `json:"notification_error,omitempty"`
}

// Create enrolls a participant in an edition. Number allocation and the
// insert are retried together, so a failed insert never leaves the caller
// holding a number; the skipped number stays unused.
func (s *RegistrationService) Create(ctx context.Context, editionID string, req model.CreateRegistrationRequest) (*CreateResult, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if editionID == "" {
		return nil, fmt.Errorf("%w: edition id is required", ErrValidation)
	}
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !isValidEmail(req.Email) {
		return nil, fmt.Errorf("%w: email is not a valid email address", ErrValidation)
	}

	edition, err := s.edition(ctx, editionID)
	if err != nil {
		return nil, err
	}

	attempt := 0
	reg, err := backoff.Retry(ctx, func() (*model.Registration, error) {
		attempt++
		reg, err := s.allocateAndCreate(ctx, edition, req)
		if err == nil {
			return reg, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.opts.Logger.Warn("allocate and create failed, retrying",
			"edition_id", edition.ID,
			"attempt", attempt,
			"error", err,
		)
		return nil, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.alloc.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	s.opts.Metrics.Registrations.WithLabelValues(strconv.FormatBool(reg.IsOnWaitinglist)).Inc()
	s.opts.Logger.Info("registration created",
		"registration_id", reg.ID,
		"edition_id", reg.EditionID,
		"number", reg.RegistrationNumber,
		"waitinglist", reg.IsOnWaitinglist,
	)

	kind := notify.KindWelcome
	if reg.IsOnWaitinglist {
		kind = notify.KindWaitinglistRegistration
	}
	result := &CreateResult{Registration: reg}
	nctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	mailID, err := s.notifier.Send(nctx, notify.ForRegistration(kind, reg))
	if err != nil {
		s.opts.Logger.Warn("registration notice failed",
			"registration_id", reg.ID,
			"kind", kind,
			"error", err,
		)
		result.NotificationError = err.Error()
		return result, nil
	}
	result.NotificationID = mailID
	return result, nil
}

func (s *RegistrationService) allocateAndCreate(ctx context.Context, edition *model.Edition, req model.CreateRegistrationRequest) (*model.Registration, error) {
	cctx, cancel := s.opts.CallContext(ctx)
	number, err := s.counters.AllocateNext(cctx, CounterKey(edition.ID))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("allocate number: %w", err)
	}
	s.opts.Metrics.Allocations.Inc()

	onWaitinglist := req.IsOnWaitinglist
	if !onWaitinglist {
		// Read outside the allocation transaction: two signups racing the
		// first waiting-list entry can both land off the list.
		cctx, cancel := s.opts.CallContext(ctx)
		active, err := s.registrations.HasActiveWaitinglist(cctx, edition.ID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("check waiting list: %w", err)
		}
		onWaitinglist = active
	}

	now := s.opts.Clock()
	reg := &model.Registration{
		ID:                 uuid.NewString(),
		EditionID:          edition.ID,
		RegistrationNumber: number,
		Email:              req.Email,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Status:             model.StatusPending,
		IsOnWaitinglist:    onWaitinglist,
		ActionRequests:     []model.ActionType{},
		Payments:           []model.Payment{},
		PaymentRequired:    edition.PaymentRequired,
		AdminComments:      []model.AdminComment{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if onWaitinglist && edition.WaitinglistDays > 0 {
		expires := now.AddDate(0, 0, edition.WaitinglistDays)
		reg.WaitinglistExpires = &expires
	}

	cctx, cancel = s.opts.CallContext(ctx)
	defer cancel()
	if err := s.registrations.Insert(cctx, reg); err != nil {
		return nil, fmt.Errorf("insert registration %d: %w", number, err)
	}
	return reg, nil
}

func (s *RegistrationService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.alloc.InitialInterval
	return b
}

// retryable reports whether an allocate-and-create failure may succeed on a
// fresh attempt.
func retryable(err error) bool {
	return errors.Is(err, repository.ErrConflict) || errors.Is(err, context.DeadlineExceeded)
}

func (s *RegistrationService) edition(ctx context.Context, id string) (*model.Edition, error) {
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	edition, err := s.editions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get edition: %w", err)
	}
	return edition, nil
}

// RecordPayment appends a payment to the ledger. Confirmation stays a
// separate admin decision.
func (s *RegistrationService) RecordPayment(ctx context.Context, id string, req model.RecordPaymentRequest) (*model.Registration, error) {
	req.Method = strings.TrimSpace(req.Method)
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("%w: method is required", ErrValidation)
	}
	if req.Date.IsZero() {
		req.Date = s.opts.Clock()
	}

	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	reg, err := s.registrations.Update(ctx, id, func(r *model.Registration) error {
		r.AddPayment(model.Payment{
			Amount:  req.Amount,
			Method:  req.Method,
			Comment: req.Comment,
			Date:    req.Date,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	s.opts.Logger.Info("payment recorded",
		"registration_id", reg.ID,
		"amount", req.Amount,
		"payment_made", reg.PaymentMade,
		"paid", reg.IsPaid(),
	)
	return reg, nil
}

// TransitionStatus moves a registration to req.Status. Repeating a
// transition is a no-op and records no comment.
func (s *RegistrationService) TransitionStatus(ctx context.Context, id string, req model.TransitionRequest) (*model.Registration, error) {
	reg, _, err := s.transition(ctx, id, req, nil)
	return reg, err
}

// Transition is TransitionStatus that also reports whether the status
// changed. Callers that notify on a change use it to stay idempotent.
func (s *RegistrationService) Transition(ctx context.Context, id string, req model.TransitionRequest) (*model.Registration, bool, error) {
	return s.transition(ctx, id, req, nil)
}

// transition applies req under the row lock. When guard is set and rejects
// the current state the registration is left as is and changed is false.
func (s *RegistrationService) transition(ctx context.Context, id string, req model.TransitionRequest, guard func(*model.Registration) bool) (*model.Registration, bool, error) {
	if !req.Status.Valid() {
		return nil, false, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	req.Comment = strings.TrimSpace(req.Comment)

	var changed bool
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	reg, err := s.registrations.Update(ctx, id, func(r *model.Registration) error {
		changed = false
		if guard != nil && !guard(r) {
			return nil
		}
		var err error
		changed, err = r.Transition(req.Status)
		if err != nil {
			return err
		}
		if changed && req.Comment != "" {
			r.AdminComments = append(r.AdminComments, model.AdminComment{
				Comment:   req.Comment,
				Author:    req.Author,
				CreatedAt: s.opts.Clock(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("transition to %s: %w", req.Status, err)
	}
	if changed {
		s.opts.Logger.Info("registration status changed",
			"registration_id", reg.ID,
			"status", reg.Status,
		)
	}
	return reg, changed, nil
}

// Get returns a single registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	reg, err := s.registrations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListByEdition returns an edition's registrations ordered by number.
func (s *RegistrationService) ListByEdition(ctx context.Context, editionID string) ([]model.Registration, error) {
	if _, err := s.edition(ctx, editionID); err != nil {
		return nil, err
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	return s.registrations.ListByEdition(ctx, editionID)
}

// CurrentNumber returns the last number handed out for an edition. It is a
// diagnostic read and may lag behind a concurrent allocation.
func (s *RegistrationService) CurrentNumber(ctx context.Context, editionID string) (int64, error) {
	if _, err := s.edition(ctx, editionID); err != nil {
		return 0, err
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	return s.counters.ReadCurrent(ctx, CounterKey(editionID))
}
