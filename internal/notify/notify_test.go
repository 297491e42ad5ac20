package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/metrics"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository/memory"
)

func TestOutboxNotifierQueuesMail(t *testing.T) {
	store := memory.New()
	n := NewOutboxNotifier(store.Outbox())

	reg := &model.Registration{ID: "r1", EditionID: "e1", RegistrationNumber: 12, Email: "runner@example.com", FirstName: "Ada"}
	id, err := n.Send(context.Background(), ForRegistration(KindWelcome, reg))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mails := store.Mails()
	require.Len(t, mails, 1)
	assert.Equal(t, id, mails[0].ID)
	assert.Equal(t, "welcome", mails[0].Kind)
	assert.Equal(t, "runner@example.com", mails[0].Recipient)
	assert.Equal(t, "r1", mails[0].RegistrationID)

	var payload outboxPayload
	require.NoError(t, json.Unmarshal(mails[0].Payload, &payload))
	require.NotNil(t, payload.Registration)
	assert.Equal(t, int64(12), payload.Registration.RegistrationNumber)
}

func TestOutboxNotifierUsesOriginalEmailAfterScrub(t *testing.T) {
	store := memory.New()
	n := NewOutboxNotifier(store.Outbox())

	reg := &model.Registration{ID: "r1", Email: "", OriginalEmail: "old@example.com", Status: model.StatusExpired}
	_, err := n.Send(context.Background(), ForRegistration(KindExpiration, reg))
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", store.Mails()[0].Recipient)
}

func TestOutboxNotifierRequiresRecipient(t *testing.T) {
	n := NewOutboxNotifier(memory.New().Outbox())
	_, err := n.Send(context.Background(), Message{Kind: KindReminder})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	failing := NotifierFunc(func(ctx context.Context, msg Message) (string, error) {
		calls++
		return "", errors.New("smtp relay down")
	})
	b := NewBreaker(failing, config.BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 2,
	})

	msg := Message{Kind: KindReminder, Recipient: "runner@example.com"}
	for range 2 {
		_, err := b.Send(context.Background(), msg)
		require.Error(t, err)
	}
	_, err := b.Send(context.Background(), msg)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, calls)
}

func TestBreakerDisabledPassesThrough(t *testing.T) {
	inner := NotifierFunc(func(ctx context.Context, msg Message) (string, error) {
		return "mail-1", nil
	})
	b := NewBreaker(inner, config.BreakerConfig{Enabled: false})

	id, err := b.Send(context.Background(), Message{Kind: KindWelcome, Recipient: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mail-1", id)
}

func TestInstrumentCountsResults(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	fail := false
	inner := NotifierFunc(func(ctx context.Context, msg Message) (string, error) {
		if fail {
			return "", errors.New("rejected")
		}
		return "mail-1", nil
	})
	n := Instrument(inner, nil, m)

	msg := Message{Kind: KindReminder, Recipient: "a@example.com"}
	id, err := n.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "mail-1", id)

	fail = true
	_, err = n.Send(context.Background(), msg)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("reminder", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("reminder", "error")))
}
