package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/notify"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
	"github.com/Shivanand-hulikatti/regflow/internal/repository/memory"
)

// recordingNotifier keeps every message and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	fail error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return "", n.fail
	}
	n.sent = append(n.sent, msg)
	return "mail-" + uuid.NewString(), nil
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

type fixture struct {
	store     *memory.Store
	notifier  *recordingNotifier
	editions  *EditionService
	lifecycle *RegistrationService
	approvals *ApprovalService
	edition   *model.Edition
}

func newFixture(t *testing.T, separateLastNotice bool) *fixture {
	t.Helper()
	store := memory.New()
	n := &recordingNotifier{}
	opts := Options{CallTimeout: time.Second}
	f := &fixture{
		store:     store,
		notifier:  n,
		editions:  NewEditionService(store.Editions(), opts),
		lifecycle: NewRegistrationService(store, n, config.AllocationConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, opts),
	}
	f.approvals = NewApprovalService(store, f.lifecycle, n, separateLastNotice, opts)

	edition, err := f.editions.Create(context.Background(), model.CreateEditionRequest{
		Name:            "Spring Run 2026",
		PaymentRequired: 300,
		MaxParticipants: 500,
		WaitinglistDays: 14,
		AdminEmails:     []string{"admin@example.com"},
	})
	require.NoError(t, err)
	f.edition = edition
	return f
}

func (f *fixture) register(t *testing.T, email string, waitinglist bool) *model.Registration {
	t.Helper()
	res, err := f.lifecycle.Create(context.Background(), f.edition.ID, model.CreateRegistrationRequest{
		Email:           email,
		FirstName:       "Ada",
		LastName:        "Lovelace",
		IsOnWaitinglist: waitinglist,
	})
	require.NoError(t, err)
	return res.Registration
}

func (f *fixture) raise(t *testing.T, reg *model.Registration, typ model.ActionType) *model.ActionRequest {
	t.Helper()
	req := &model.ActionRequest{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		Email:          reg.Email,
		Type:           typ,
		Reason:         "test",
		Status:         model.RequestPending,
		CreatedAt:      time.Now().UTC(),
	}
	created, err := f.store.Requests().Raise(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)
	return req
}

func TestEditionCreateValidation(t *testing.T) {
	svc := NewEditionService(memory.New().Editions(), Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, model.CreateEditionRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, model.CreateEditionRequest{Name: "Run", MaxParticipants: 200_000})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, model.CreateEditionRequest{Name: "Run", AdminEmails: []string{"nope"}})
	assert.ErrorIs(t, err, ErrValidation)

	edition, err := svc.Create(ctx, model.CreateEditionRequest{Name: " Run ", AdminEmails: []string{"Admin@Example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "Run", edition.Name)
	assert.Equal(t, []string{"admin@example.com"}, edition.AdminEmails)

	got, err := svc.Get(ctx, edition.ID)
	require.NoError(t, err)
	assert.Equal(t, edition.ID, got.ID)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateRegistrationSendsWelcome(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.lifecycle.Create(context.Background(), f.edition.ID, model.CreateRegistrationRequest{
		Email: " Runner@Example.com ", FirstName: "Ada",
	})
	require.NoError(t, err)
	reg := res.Registration
	assert.Equal(t, int64(1), reg.RegistrationNumber)
	assert.Equal(t, "runner@example.com", reg.Email)
	assert.Equal(t, model.StatusPending, reg.Status)
	assert.Equal(t, int64(300), reg.PaymentRequired)
	assert.Zero(t, reg.RemindersSent)
	assert.Zero(t, reg.LastNoticesSent)
	assert.False(t, reg.IsOnWaitinglist)
	assert.Nil(t, reg.WaitinglistExpires)
	assert.NotEmpty(t, res.NotificationID)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindWelcome, msgs[0].Kind)
	assert.Equal(t, "runner@example.com", msgs[0].Recipient)

	second := f.register(t, "second@example.com", false)
	assert.Equal(t, int64(2), second.RegistrationNumber)

	current, err := f.lifecycle.CurrentNumber(context.Background(), f.edition.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
}

func TestCreateRegistrationValidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.lifecycle.Create(ctx, f.edition.ID, model.CreateRegistrationRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.lifecycle.Create(ctx, f.edition.ID, model.CreateRegistrationRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.lifecycle.Create(ctx, "missing", model.CreateRegistrationRequest{Email: "a@example.com"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	current, err := f.store.Counters().ReadCurrent(ctx, CounterKey(f.edition.ID))
	require.NoError(t, err)
	assert.Zero(t, current, "rejected input must not consume a number")
}

func TestCreateRegistrationConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	const n = 50
	numbers := make([]int64, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			res, err := f.lifecycle.Create(ctx, f.edition.ID, model.CreateRegistrationRequest{Email: "runner@example.com"})
			if err != nil {
				return err
			}
			numbers[i] = res.Registration.RegistrationNumber
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, v := range numbers {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestCreateRegistrationForcedOntoWaitinglist(t *testing.T) {
	f := newFixture(t, false)

	first := f.register(t, "first@example.com", true)
	require.True(t, first.IsOnWaitinglist)
	require.NotNil(t, first.WaitinglistExpires)
	assert.Equal(t, first.CreatedAt.AddDate(0, 0, 14), *first.WaitinglistExpires)

	second := f.register(t, "second@example.com", false)
	assert.True(t, second.IsOnWaitinglist)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, notify.KindWaitinglistRegistration, msgs[1].Kind)

	// Once the waiting list holds only terminal registrations, new signups
	// go straight in again.
	for _, reg := range []*model.Registration{first, second} {
		_, err := f.lifecycle.TransitionStatus(context.Background(), reg.ID, model.TransitionRequest{Status: model.StatusCancelled})
		require.NoError(t, err)
	}
	third := f.register(t, "third@example.com", false)
	assert.False(t, third.IsOnWaitinglist)
}

func TestCreateRegistrationNotificationFailureIsSoft(t *testing.T) {
	f := newFixture(t, false)
	f.notifier.fail = errors.New("mail backend down")

	res, err := f.lifecycle.Create(context.Background(), f.edition.ID, model.CreateRegistrationRequest{Email: "runner@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mail backend down", res.NotificationError)
	assert.Empty(t, res.NotificationID)

	stored, err := f.lifecycle.Get(context.Background(), res.Registration.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

type flakyCounters struct {
	repository.CounterStore
	failures int
	calls    int
}

func (c *flakyCounters) AllocateNext(ctx context.Context, key string) (int64, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return 0, repository.ErrConflict
	}
	return c.CounterStore.AllocateNext(ctx, key)
}

type flakyStore struct {
	*memory.Store
	counters *flakyCounters
}

func (s flakyStore) Counters() repository.CounterStore { return s.counters }

func TestCreateRegistrationRetriesConflicts(t *testing.T) {
	f := newFixture(t, false)
	counters := &flakyCounters{CounterStore: f.store.Counters(), failures: 2}
	svc := NewRegistrationService(flakyStore{Store: f.store, counters: counters}, f.notifier,
		config.AllocationConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, Options{})

	res, err := svc.Create(context.Background(), f.edition.ID, model.CreateRegistrationRequest{Email: "runner@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3, counters.calls)
	assert.Equal(t, int64(1), res.Registration.RegistrationNumber)
}

func TestCreateRegistrationGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, false)
	counters := &flakyCounters{CounterStore: f.store.Counters(), failures: 10}
	svc := NewRegistrationService(flakyStore{Store: f.store, counters: counters}, f.notifier,
		config.AllocationConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, Options{})

	_, err := svc.Create(context.Background(), f.edition.ID, model.CreateRegistrationRequest{Email: "runner@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 3, counters.calls)
	assert.Empty(t, f.notifier.messages())
}

func TestRecordPaymentKeepsSum(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	ctx := context.Background()

	for _, amount := range []int64{100, 150, 50} {
		_, err := f.lifecycle.RecordPayment(ctx, reg.ID, model.RecordPaymentRequest{Amount: amount, Method: "transfer"})
		require.NoError(t, err)
	}
	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.PaymentMade)
	assert.Len(t, got.Payments, 3)
	assert.Equal(t, model.StatusPending, got.Status, "payment never confirms on its own")

	_, err = f.lifecycle.RecordPayment(ctx, reg.ID, model.RecordPaymentRequest{Amount: 0, Method: "card"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.lifecycle.RecordPayment(ctx, "missing", model.RecordPaymentRequest{Amount: 10, Method: "card"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecordPaymentConcurrentKeepsEveryEntry(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	ctx := context.Background()

	var g errgroup.Group
	for _, amount := range []int64{100, 150, 50} {
		g.Go(func() error {
			_, err := f.lifecycle.RecordPayment(ctx, reg.ID, model.RecordPaymentRequest{Amount: amount, Method: "card"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.PaymentMade)
	assert.Len(t, got.Payments, 3)
}

func TestTransitionStatusIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	ctx := context.Background()

	first, err := f.lifecycle.TransitionStatus(ctx, reg.ID, model.TransitionRequest{Status: model.StatusExpired, Comment: "no payment", Author: "ops"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, first.Status)
	assert.Empty(t, first.Email)
	assert.Equal(t, "runner@example.com", first.OriginalEmail)
	require.Len(t, first.AdminComments, 1)
	assert.Equal(t, "ops", first.AdminComments[0].Author)

	second, err := f.lifecycle.TransitionStatus(ctx, reg.ID, model.TransitionRequest{Status: model.StatusExpired})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, second.Status)
	assert.Empty(t, second.Email)
	assert.Equal(t, "runner@example.com", second.OriginalEmail)
	assert.Len(t, second.AdminComments, 1)

	_, err = f.lifecycle.TransitionStatus(ctx, reg.ID, model.TransitionRequest{Status: model.StatusConfirmed})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.lifecycle.TransitionStatus(ctx, reg.ID, model.TransitionRequest{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApproveReminder(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	req := f.raise(t, reg, model.ActionSendReminder)
	ctx := context.Background()

	out, err := f.approvals.Approve(ctx, req.ID, "ops")
	require.NoError(t, err)
	assert.True(t, out.Notified)
	assert.True(t, out.StateChanged)
	assert.True(t, out.Completed)
	assert.NotEmpty(t, out.NotificationID)

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemindersSent)
	assert.Zero(t, got.LastNoticesSent)
	require.Len(t, got.AdminComments, 1)
	assert.Equal(t, out.NotificationID, got.AdminComments[0].MailID)
	assert.Equal(t, MailStateApproved, got.AdminComments[0].MailState)

	stored, err := f.store.Requests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestDone, stored.Status)
	assert.NotNil(t, stored.ActedAt)

	msgs := f.notifier.messages()
	assert.Equal(t, notify.KindReminder, msgs[len(msgs)-1].Kind)

	_, err = f.approvals.Approve(ctx, req.ID, "ops")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = f.approvals.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestApproveLastNoticeCounter(t *testing.T) {
	tests := []struct {
		name          string
		separate      bool
		wantReminders int
		wantNotices   int
	}{
		{"shared counter", false, 2, 0},
		{"separate counter", true, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.separate)
			reg := f.register(t, "runner@example.com", false)
			ctx := context.Background()

			_, err := f.approvals.Approve(ctx, f.raise(t, reg, model.ActionSendReminder).ID, "ops")
			require.NoError(t, err)
			_, err = f.approvals.Approve(ctx, f.raise(t, reg, model.ActionSendLastNotice).ID, "ops")
			require.NoError(t, err)

			got, err := f.lifecycle.Get(ctx, reg.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReminders, got.RemindersSent)
			assert.Equal(t, tt.wantNotices, got.LastNoticesSent)

			msgs := f.notifier.messages()
			assert.Equal(t, notify.KindLastNotice, msgs[len(msgs)-1].Kind)
		})
	}
}

func TestApproveReminderNotificationFailureChangesNothing(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	req := f.raise(t, reg, model.ActionSendReminder)
	f.notifier.fail = errors.New("mail backend down")
	ctx := context.Background()

	out, err := f.approvals.Approve(ctx, req.ID, "ops")
	require.Error(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Notified)
	assert.False(t, out.StateChanged)
	assert.False(t, out.Completed)
	assert.Equal(t, "mail backend down", out.NotificationError)

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RemindersSent)
	assert.Empty(t, got.AdminComments)

	stored, err := f.store.Requests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, stored.Status)
}

func TestApproveExpiration(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	req := f.raise(t, reg, model.ActionExpireRegistration)
	ctx := context.Background()

	out, err := f.approvals.Approve(ctx, req.ID, "ops")
	require.NoError(t, err)
	assert.True(t, out.StateChanged)
	assert.True(t, out.Notified)
	assert.True(t, out.Completed)

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Empty(t, got.Email)
	assert.Equal(t, "runner@example.com", got.OriginalEmail)
	require.Len(t, got.AdminComments, 1)
	assert.Equal(t, out.NotificationID, got.AdminComments[0].MailID)

	msgs := f.notifier.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, notify.KindExpiration, last.Kind)
	assert.Equal(t, "runner@example.com", last.Recipient)
}

func TestApproveExpirationNotificationFailureStillCompletes(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	req := f.raise(t, reg, model.ActionExpireRegistration)
	f.notifier.fail = errors.New("mail backend down")
	ctx := context.Background()

	out, err := f.approvals.Approve(ctx, req.ID, "ops")
	require.NoError(t, err)
	assert.True(t, out.StateChanged)
	assert.False(t, out.Notified)
	assert.True(t, out.Completed)
	assert.Equal(t, "mail backend down", out.NotificationError)
	assert.Contains(t, out.Summary(), "notification failed")

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	require.Len(t, got.AdminComments, 1)
	assert.Equal(t, MailStateFailed, got.AdminComments[0].MailState)
}

func TestApproveExpirationClosesWhenNoLongerPending(t *testing.T) {
	for _, status := range []model.Status{model.StatusConfirmed, model.StatusCancelled, model.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, false)
			reg := f.register(t, "runner@example.com", false)
			req := f.raise(t, reg, model.ActionExpireRegistration)
			ctx := context.Background()

			_, err := f.lifecycle.TransitionStatus(ctx, reg.ID, model.TransitionRequest{Status: status})
			require.NoError(t, err)
			sentBefore := len(f.notifier.messages())

			out, err := f.approvals.Approve(ctx, req.ID, "ops")
			require.NoError(t, err)
			assert.False(t, out.StateChanged)
			assert.False(t, out.Notified)
			assert.True(t, out.Completed)
			assert.Len(t, f.notifier.messages(), sentBefore)

			got, err := f.lifecycle.Get(ctx, reg.ID)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status)
			assert.Empty(t, got.AdminComments)

			stored, err := f.store.Requests().Get(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RequestDone, stored.Status)
		})
	}
}

func TestTransitionReportsChange(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	ctx := context.Background()
	req := model.TransitionRequest{Status: model.StatusExpired, Comment: "waiting list expired", Author: "system"}

	_, changed, err := f.lifecycle.Transition(ctx, reg.ID, req)
	require.NoError(t, err)
	assert.True(t, changed)

	got, changed, err := f.lifecycle.Transition(ctx, reg.ID, req)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, got.AdminComments, 1, "a repeated transition records no comment")
}

func TestRejectHasNoSideEffects(t *testing.T) {
	f := newFixture(t, false)
	reg := f.register(t, "runner@example.com", false)
	req := f.raise(t, reg, model.ActionExpireRegistration)
	sentBefore := len(f.notifier.messages())
	ctx := context.Background()

	out, err := f.approvals.Reject(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.False(t, out.StateChanged)

	got, err := f.lifecycle.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Len(t, f.notifier.messages(), sentBefore)

	stored, err := f.store.Requests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, stored.Status)
	assert.NotNil(t, stored.ActedAt)

	_, err = f.approvals.Reject(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestApproveAllReportsEveryOutcome(t *testing.T) {
	f := newFixture(t, false)
	ok := f.register(t, "ok@example.com", false)
	scrubbed := f.register(t, "gone@example.com", false)
	f.raise(t, ok, model.ActionSendReminder)
	f.raise(t, scrubbed, model.ActionSendReminder)
	f.raise(t, ok, model.ActionExpireRegistration)

	// A cancelled registration can no longer be reminded.
	_, err := f.lifecycle.TransitionStatus(context.Background(), scrubbed.ID, model.TransitionRequest{Status: model.StatusCancelled})
	require.NoError(t, err)

	outcomes, err := f.approvals.ApproveAll(context.Background(), model.ActionSendReminder, "ops")
	require.Error(t, err)
	require.Len(t, outcomes, 2)

	completed := 0
	for _, out := range outcomes {
		if out.Completed {
			completed++
			assert.Equal(t, ok.ID, out.RegistrationID)
		}
	}
	assert.Equal(t, 1, completed)

	pending, err := f.approvals.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, pending, 2, "failed reminder and untouched expiry stay pending")

	_, err = f.approvals.ListPending(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrValidation)
}
