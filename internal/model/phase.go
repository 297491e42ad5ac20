package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a status change the lifecycle does
// not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// Phase is the explicit lifecycle phase of a registration. It is derived
// from the stored status and escalation counters, so there is a single place
// that decides what a combination of fields means.
type Phase string

const (
	PhasePendingNoReminder Phase = "pending_no_reminder"
	PhasePendingReminded   Phase = "pending_reminded"
	PhasePendingLastNotice Phase = "pending_last_notice"
	// PhasePendingManual covers pending registrations whose counters were
	// pushed past the automated path, e.g. by admin re-sends. The pipeline
	// never escalates them further.
	PhasePendingManual Phase = "pending_manual"
	PhaseConfirmed     Phase = "confirmed"
	PhaseCancelled     Phase = "cancelled"
	PhaseExpired       Phase = "expired"
)

// Phase derives the lifecycle phase of r.
func (r *Registration) Phase() Phase {
	switch r.Status {
	case StatusConfirmed:
		return PhaseConfirmed
	case StatusCancelled:
		return PhaseCancelled
	case StatusExpired:
		return PhaseExpired
	}

	switch {
	case r.RemindersSent == 0 && r.LastNoticesSent == 0:
		return PhasePendingNoReminder
	case r.RemindersSent >= 1 && r.LastNoticesSent == 0:
		return PhasePendingReminded
	case r.RemindersSent == 1 && r.LastNoticesSent == 1:
		return PhasePendingLastNotice
	default:
		return PhasePendingManual
	}
}

// NextEscalation returns the action the escalation pipeline raises for a
// registration in phase p, if any.
func (p Phase) NextEscalation() (ActionType, bool) {
	switch p {
	case PhasePendingNoReminder:
		return ActionSendReminder, true
	case PhasePendingReminded:
		return ActionSendLastNotice, true
	case PhasePendingLastNotice:
		return ActionExpireRegistration, true
	}
	return "", false
}

// CanTransition reports whether a registration may move from one status to
// another. Moving to the current status is always allowed and is a no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusExpired
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusExpired
	}
	return false
}

// Transition moves r to status to. The first move into cancelled or expired
// scrubs Email and keeps the address in OriginalEmail; OriginalEmail being
// set is what stops the scrub from running twice. It reports whether the
// status actually changed.
func (r *Registration) Transition(to Status) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(r.Status, to) {
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, to)
	}
	changed := r.Status != to
	r.Status = to
	if to.Terminal() && r.OriginalEmail == "" {
		r.OriginalEmail = r.Email
		r.Email = ""
	}
	return changed, nil
}
