// Package model defines the core domain types for the registration system.
package model

import (
	"slices"
	"time"
)

// Status is the stored lifecycle status of a registration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status ends the registration.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// ActionType names a side effect the escalation pipeline can propose.
type ActionType string

const (
	ActionSendReminder       ActionType = "sendReminder"
	ActionSendLastNotice     ActionType = "sendLastNotice"
	ActionExpireRegistration ActionType = "expireRegistration"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionSendReminder, ActionSendLastNotice, ActionExpireRegistration:
		return true
	}
	return false
}

// RequestStatus tracks an action request through the approval queue.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestDone     RequestStatus = "done"
	RequestRejected RequestStatus = "rejected"
)

// Edition is one concrete occurrence of a recurring event.
type Edition struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PaymentRequired int64     `json:"payment_required"`
	MaxParticipants int       `json:"max_participants"`
	WaitinglistDays int       `json:"waitinglist_days"`
	AdminEmails     []string  `json:"admin_emails"`
	CreatedAt       time.Time `json:"created_at"`
}

// Payment is a single entry in a registration's payment ledger.
type Payment struct {
	Amount  int64     `json:"amount"`
	Method  string    `json:"method"`
	Comment string    `json:"comment,omitempty"`
	Date    time.Time `json:"date"`
}

// AdminComment is one entry of the append-only audit trail.
type AdminComment struct {
	Comment   string    `json:"comment"`
	Author    string    `json:"author,omitempty"`
	MailID    string    `json:"mail_id,omitempty"`
	MailState string    `json:"mail_state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration is a participant's enrollment in an edition.
type Registration struct {
	ID                 string         `json:"id"`
	EditionID          string         `json:"edition_id"`
	RegistrationNumber int64          `json:"registration_number"`
	Email              string         `json:"email"`
	OriginalEmail      string         `json:"original_email,omitempty"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	Status             Status         `json:"status"`
	IsOnWaitinglist    bool           `json:"is_on_waitinglist"`
	WaitinglistExpires *time.Time     `json:"waitinglist_expires,omitempty"`
	RemindersSent      int            `json:"reminders_sent"`
	LastNoticesSent    int            `json:"last_notices_sent"`
	ActionRequests     []ActionType   `json:"action_requests"`
	Payments           []Payment      `json:"payments"`
	PaymentMade        int64          `json:"payment_made"`
	PaymentRequired    int64          `json:"payment_required"`
	AdminComments      []AdminComment `json:"admin_comments"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasRequest reports whether an action of type t was already raised.
func (r *Registration) HasRequest(t ActionType) bool {
	return slices.Contains(r.ActionRequests, t)
}

// AddRequestTag records t in the idempotency tag set. It returns false when
// the tag was already present.
func (r *Registration) AddRequestTag(t ActionType) bool {
	if r.HasRequest(t) {
		return false
	}
	r.ActionRequests = append(r.ActionRequests, t)
	return true
}

// AddPayment appends p to the ledger and recomputes PaymentMade.
func (r *Registration) AddPayment(p Payment) {
	r.Payments = append(r.Payments, p)
	r.RecomputePaymentMade()
}

// RecomputePaymentMade sets PaymentMade to the sum of the ledger.
func (r *Registration) RecomputePaymentMade() {
	var sum int64
	for _, p := range r.Payments {
		sum += p.Amount
	}
	r.PaymentMade = sum
}

// IsPaid reports whether the ledger covers the required amount.
func (r *Registration) IsPaid() bool {
	return r.PaymentMade >= r.PaymentRequired
}

// ContactEmail returns the address notices should go to. After the email
// has been scrubbed it falls back to the preserved original.
func (r *Registration) ContactEmail() string {
	if r.Email != "" {
		return r.Email
	}
	return r.OriginalEmail
}

// Snapshot returns the stable subset of fields handed to notifiers.
func (r *Registration) Snapshot() RegistrationSnapshot {
	return RegistrationSnapshot{
		ID:                 r.ID,
		EditionID:          r.EditionID,
		RegistrationNumber: r.RegistrationNumber,
		Email:              r.ContactEmail(),
		FirstName:          r.FirstName,
		LastName:           r.LastName,
		IsOnWaitinglist:    r.IsOnWaitinglist,
		WaitinglistExpires: r.WaitinglistExpires,
		CreatedAt:          r.CreatedAt,
	}
}

// Clone returns a deep copy of r.
func (r *Registration) Clone() *Registration {
	c := *r
	c.ActionRequests = slices.Clone(r.ActionRequests)
	c.Payments = slices.Clone(r.Payments)
	c.AdminComments = slices.Clone(r.AdminComments)
	if r.WaitinglistExpires != nil {
		t := *r.WaitinglistExpires
		c.WaitinglistExpires = &t
	}
	return &c
}

// RegistrationSnapshot is what a notifier may rely on.
type RegistrationSnapshot struct {
	ID                 string     `json:"id"`
	EditionID          string     `json:"edition_id"`
	RegistrationNumber int64      `json:"registration_number"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	IsOnWaitinglist    bool       `json:"is_on_waitinglist"`
	WaitinglistExpires *time.Time `json:"waitinglist_expires,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ActionRequest is a proposed side effect awaiting approval.
type ActionRequest struct {
	ID             string        `json:"id"`
	RegistrationID string        `json:"registration_id"`
	Email          string        `json:"email"`
	Type           ActionType    `json:"type"`
	Reason         string        `json:"reason"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ActedAt        *time.Time    `json:"acted_at,omitempty"`
}

// DailyJobLog proves a scheduled job ran on a given day.
type DailyJobLog struct {
	Day       string    `json:"day"`
	JobName   string    `json:"job_name"`
	Count     int       `json:"count"`
	IDs       []string  `json:"ids"`
	Timestamp time.Time `json:"timestamp"`
}

// DayKey formats t as the day key used by DailyJobLog.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// OutboundMail is a queued message in the mail outbox.
type OutboundMail struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Recipient      string    `json:"recipient"`
	RegistrationID string    `json:"registration_id,omitempty"`
	Payload        []byte    `json:"payload"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateEditionRequest is the payload for creating a new edition.
type CreateEditionRequest struct {
	Name            string   `json:"name"`
	PaymentRequired int64    `json:"payment_required"`
	MaxParticipants int      `json:"max_participants"`
	WaitinglistDays int      `json:"waitinglist_days"`
	AdminEmails     []string `json:"admin_emails"`
}

// CreateRegistrationRequest is the payload for enrolling in an edition.
type CreateRegistrationRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	IsOnWaitinglist bool   `json:"is_on_waitinglist"`
}

// RecordPaymentRequest is the payload for adding a payment.
type RecordPaymentRequest struct {
	Amount  int64     `json:"amount"`
	Method  string    `json:"method"`
	Comment string    `json:"comment"`
	Date    time.Time `json:"date"`
}

// TransitionRequest is the payload for a status change.
type TransitionRequest struct {
	Status  Status `json:"status"`
	Comment string `json:"comment"`
	Author  string `json:"author"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
