package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/notify"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

// Mail states recorded on audit comments.
const (
	MailStateApproved = "approved"
	MailStateFailed   = "failed"
)

// ApprovalService drains the action request queue. It is the only place
// escalation side effects happen.
type ApprovalService struct {
	requests      repository.ActionRequestStore
	registrations repository.RegistrationStore
	lifecycle     *RegistrationService
	notifier      notify.Notifier
	// separateLastNotice makes an approved last notice increment
	// LastNoticesSent instead of the shared RemindersSent counter.
	separateLastNotice bool
	opts               Options
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(
	store repository.Store,
	lifecycle *RegistrationService,
	notifier notify.Notifier,
	separateLastNotice bool,
	opts Options,
) *ApprovalService {
	return &ApprovalService{
		requests:           store.Requests(),
		registrations:      store.Registrations(),
		lifecycle:          lifecycle,
		notifier:           notifier,
		separateLastNotice: separateLastNotice,
		opts:               opts.WithDefaults(),
	}
}

// ApprovalOutcome reports which side effects of an approval took place.
// A non-empty Error with StateChanged or Notified set means the request
// was partially applied.
type ApprovalOutcome struct {
	RequestID         string           `json:"request_id"`
	RegistrationID    string           `json:"registration_id"`
	Type              model.ActionType `json:"type"`
	StateChanged      bool             `json:"state_changed"`
	Notified          bool             `json:"notified"`
	NotificationID    string           `json:"notification_id,omitempty"`
	NotificationError string           `json:"notification_error,omitempty"`
	Completed         bool             `json:"completed"`
	Error             string           `json:"error,omitempty"`
}

// Summary returns a one-line description for operators.
func (o *ApprovalOutcome) Summary() string {
	var parts []string
	if o.StateChanged {
		parts = append(parts, "state changed")
	}
	if o.Notified {
		parts = append(parts, "notified ("+o.NotificationID+")")
	} else if o.NotificationError != "" {
		parts = append(parts, "notification failed: "+o.NotificationError)
	}
	if o.Completed {
		parts = append(parts, "completed")
	}
	if o.Error != "" {
		parts = append(parts, "error: "+o.Error)
	}
	if len(parts) == 0 {
		parts = append(parts, "no effect")
	}
	return fmt.Sprintf("%s %s: %s", o.Type, o.RequestID, strings.Join(parts, ", "))
}

// ListPending returns pending requests oldest first. An empty actionType
// lists every type.
func (s *ApprovalService) ListPending(ctx context.Context, actionType model.ActionType) ([]model.ActionRequest, error) {
	if actionType != "" && !actionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrValidation, actionType)
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	return s.requests.ListPending(ctx, actionType)
}

// Approve performs the side effect a request proposes and marks it done.
// The returned outcome is non-nil whenever the request was found.
func (s *ApprovalService) Approve(ctx context.Context, requestID, author string) (*ApprovalOutcome, error) {
	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	out := &ApprovalOutcome{RequestID: req.ID, RegistrationID: req.RegistrationID, Type: req.Type}

	switch req.Type {
	case model.ActionSendReminder, model.ActionSendLastNotice:
		err = s.approveNotice(ctx, req, author, out)
	case model.ActionExpireRegistration:
		err = s.approveExpiry(ctx, req, author, out)
	default:
		err = fmt.Errorf("%w: unknown action type %q", ErrValidation, req.Type)
	}
	if err == nil {
		err = s.markActed(ctx, req.ID, model.RequestDone)
	}
	if err != nil {
		out.Error = err.Error()
		s.opts.Metrics.Approvals.WithLabelValues(string(req.Type), "failed").Inc()
		s.opts.Logger.Error("approval failed",
			"request_id", req.ID,
			"registration_id", req.RegistrationID,
			"type", req.Type,
			"state_changed", out.StateChanged,
			"notified", out.Notified,
			"error", err,
		)
		return out, err
	}

	out.Completed = true
	s.opts.Metrics.Approvals.WithLabelValues(string(req.Type), "approved").Inc()
	s.opts.Logger.Info("action request approved",
		"request_id", req.ID,
		"registration_id", req.RegistrationID,
		"type", req.Type,
		"mail_id", out.NotificationID,
	)
	return out, nil
}

// approveNotice sends the reminder or last notice first and only then
// counts it, so a failed send leaves the registration and the request
// untouched.
func (s *ApprovalService) approveNotice(ctx context.Context, req *model.ActionRequest, author string, out *ApprovalOutcome) error {
	reg, err := s.lifecycle.Get(ctx, req.RegistrationID)
	if err != nil {
		return err
	}
	if reg.Status != model.StatusPending {
		return fmt.Errorf("%w: registration %s is %s", model.ErrInvalidTransition, reg.ID, reg.Status)
	}
	if reg.Email == "" {
		return fmt.Errorf("registration %s: %w", reg.ID, notify.ErrNoRecipient)
	}

	kind := notify.KindReminder
	if req.Type == model.ActionSendLastNotice {
		kind = notify.KindLastNotice
	}
	nctx, cancel := s.opts.CallContext(ctx)
	mailID, err := s.notifier.Send(nctx, notify.ForRegistration(kind, reg))
	cancel()
	if err != nil {
		out.NotificationError = err.Error()
		return fmt.Errorf("send %s: %w", kind, err)
	}
	out.Notified = true
	out.NotificationID = mailID

	uctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	_, err = s.registrations.Update(uctx, reg.ID, func(r *model.Registration) error {
		if req.Type == model.ActionSendLastNotice && s.separateLastNotice {
			r.LastNoticesSent++
		} else {
			r.RemindersSent++
		}
		r.AdminComments = append(r.AdminComments, model.AdminComment{
			Comment:   fmt.Sprintf("%s sent", kind),
			Author:    author,
			MailID:    mailID,
			MailState: MailStateApproved,
			CreatedAt: s.opts.Clock(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("mail %s queued but not recorded: %w", mailID, err)
	}
	out.StateChanged = true
	return nil
}

// approveExpiry expires the registration, then notifies. A failed notice
// does not undo the expiry; it is reported on the outcome and the audit
// comment. A registration that left pending since the request was raised
// (confirmed, cancelled or already expired) is left alone and the request
// is closed.
func (s *ApprovalService) approveExpiry(ctx context.Context, req *model.ActionRequest, author string, out *ApprovalOutcome) error {
	stillPending := func(r *model.Registration) bool { return r.Status == model.StatusPending }
	reg, changed, err := s.lifecycle.transition(ctx, req.RegistrationID,
		model.TransitionRequest{Status: model.StatusExpired}, stillPending)
	if err != nil {
		return err
	}
	out.StateChanged = changed
	if !changed {
		s.opts.Logger.Info("registration no longer pending, closing expiry request",
			"request_id", req.ID,
			"registration_id", reg.ID,
			"status", reg.Status,
		)
		return nil
	}

	nctx, cancel := s.opts.CallContext(ctx)
	mailID, sendErr := s.notifier.Send(nctx, notify.ForRegistration(notify.KindExpiration, reg))
	cancel()
	state := MailStateApproved
	if sendErr != nil {
		state = MailStateFailed
		out.NotificationError = sendErr.Error()
		s.opts.Logger.Warn("expiration notice failed",
			"registration_id", reg.ID,
			"error", sendErr,
		)
	} else {
		out.Notified = true
		out.NotificationID = mailID
	}

	uctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	_, err = s.registrations.Update(uctx, reg.ID, func(r *model.Registration) error {
		r.AdminComments = append(r.AdminComments, model.AdminComment{
			Comment:   "registration expired",
			Author:    author,
			MailID:    mailID,
			MailState: state,
			CreatedAt: s.opts.Clock(),
		})
		return nil
	})
	if err != nil {
		s.opts.Logger.Warn("expiry audit comment not recorded",
			"registration_id", reg.ID,
			"error", err,
		)
	}
	return nil
}

// Reject closes a request without any side effect.
func (s *ApprovalService) Reject(ctx context.Context, requestID string) (*ApprovalOutcome, error) {
	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	out := &ApprovalOutcome{RequestID: req.ID, RegistrationID: req.RegistrationID, Type: req.Type}
	if err := s.markActed(ctx, req.ID, model.RequestRejected); err != nil {
		out.Error = err.Error()
		return out, err
	}
	out.Completed = true
	s.opts.Metrics.Approvals.WithLabelValues(string(req.Type), "rejected").Inc()
	s.opts.Logger.Info("action request rejected", "request_id", req.ID, "type", req.Type)
	return out, nil
}

// ApproveAll approves every pending request of actionType, one at a time.
// It keeps going past failures and returns every outcome with the joined
// errors.
func (s *ApprovalService) ApproveAll(ctx context.Context, actionType model.ActionType, author string) ([]ApprovalOutcome, error) {
	pending, err := s.ListPending(ctx, actionType)
	if err != nil {
		return nil, err
	}
	outcomes := make([]ApprovalOutcome, 0, len(pending))
	var errs []error
	for _, req := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, err := s.Approve(ctx, req.ID, author)
		if out != nil {
			outcomes = append(outcomes, *out)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", req.ID, err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (s *ApprovalService) pendingRequest(ctx context.Context, id string) (*model.ActionRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrValidation)
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get action request: %w", err)
	}
	if req.Status != model.RequestPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, req.ID, req.Status)
	}
	return req, nil
}

func (s *ApprovalService) markActed(ctx context.Context, id string, status model.RequestStatus) error {
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	err := s.requests.MarkActed(ctx, id, status, s.opts.Clock())
	if errors.Is(err, repository.ErrNotPending) {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, id)
	}
	if err != nil {
		return fmt.Errorf("mark request %s: %w", status, err)
	}
	return nil
}
