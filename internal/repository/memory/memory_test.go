package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

func TestAllocateNextConcurrent(t *testing.T) {
	store := New()
	counters := store.Counters()
	ctx := context.Background()

	const n = 64
	values := make([]int64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := counters.AllocateNext(ctx, "registrations-e1")
			assert.NoError(t, err)
			values[i] = v
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, v := range values {
		assert.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
		assert.GreaterOrEqual(t, v, int64(1))
		assert.LessOrEqual(t, v, int64(n))
	}

	current, err := counters.ReadCurrent(ctx, "registrations-e1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), current)
}

func TestRaiseIsDeduplicated(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Registrations().Insert(ctx, &model.Registration{ID: "r1", EditionID: "e1", RegistrationNumber: 1, Status: model.StatusPending}))

	first, err := store.Requests().Raise(ctx, &model.ActionRequest{ID: "a1", RegistrationID: "r1", Type: model.ActionSendReminder, Status: model.RequestPending})
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.Requests().Raise(ctx, &model.ActionRequest{ID: "a2", RegistrationID: "r1", Type: model.ActionSendReminder, Status: model.RequestPending})
	require.NoError(t, err)
	assert.False(t, second)

	reg, err := store.Registrations().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []model.ActionType{model.ActionSendReminder}, reg.ActionRequests)

	pending, err := store.Requests().ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMarkActedOnlyOnce(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Registrations().Insert(ctx, &model.Registration{ID: "r1", EditionID: "e1", RegistrationNumber: 1}))
	_, err := store.Requests().Raise(ctx, &model.ActionRequest{ID: "a1", RegistrationID: "r1", Type: model.ActionSendReminder, Status: model.RequestPending})
	require.NoError(t, err)

	require.NoError(t, store.Requests().MarkActed(ctx, "a1", model.RequestDone, time.Now()))
	err = store.Requests().MarkActed(ctx, "a1", model.RequestRejected, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotPending)

	err = store.Requests().MarkActed(ctx, "missing", model.RequestDone, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInsertRejectsDuplicateNumber(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Registrations().Insert(ctx, &model.Registration{ID: "r1", EditionID: "e1", RegistrationNumber: 7}))
	err := store.Registrations().Insert(ctx, &model.Registration{ID: "r2", EditionID: "e1", RegistrationNumber: 7})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUpdateReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Registrations().Insert(ctx, &model.Registration{ID: "r1", EditionID: "e1", RegistrationNumber: 1}))

	updated, err := store.Registrations().Update(ctx, "r1", func(r *model.Registration) error {
		r.RemindersSent++
		return nil
	})
	require.NoError(t, err)
	updated.RemindersSent = 99

	reg, err := store.Registrations().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.RemindersSent)
	assert.False(t, reg.UpdatedAt.IsZero())
}

func TestJobLogSameDayRunsMerge(t *testing.T) {
	store := New()
	ctx := context.Background()
	day := model.DayKey(time.Now())
	first := time.Now().UTC()

	require.NoError(t, store.JobLogs().Write(ctx, model.DailyJobLog{Day: day, JobName: "reminderPending", Count: 1, IDs: []string{"r1"}, Timestamp: first}))
	require.NoError(t, store.JobLogs().Write(ctx, model.DailyJobLog{Day: day, JobName: "reminderPending", Timestamp: first.Add(time.Hour)}))

	entry, err := store.JobLogs().Get(ctx, day, "reminderPending")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, []string{"r1"}, entry.IDs)
	assert.Equal(t, first.Add(time.Hour), entry.Timestamp)

	require.NoError(t, store.JobLogs().Write(ctx, model.DailyJobLog{Day: day, JobName: "reminderPending", Count: 2, IDs: []string{"r2", "r1"}, Timestamp: first}))
	entry, err = store.JobLogs().Get(ctx, day, "reminderPending")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, []string{"r1", "r2"}, entry.IDs)

	other, err := store.JobLogs().Get(ctx, day, "expirePending")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, other)
}
