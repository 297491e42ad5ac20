package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
)

type mockRunner struct {
	mu       sync.Mutex
	calls    []string
	deadline bool
	err      error
}

func (m *mockRunner) Run(ctx context.Context, name string) (*escalation.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return &escalation.RunResult{Job: name}, nil
}

func defaultSchedules() config.Schedules {
	return config.Schedules{
		ReminderPending:   "0 6 * * *",
		LastNoticePending: "10 6 * * *",
		ExpirePending:     "20 6 * * *",
		ExpireWaitinglist: "30 6 * * *",
	}
}

func TestSchedulerDisabled(t *testing.T) {
	s := New(config.SchedulerConfig{Enabled: false, Schedules: defaultSchedules()}, &mockRunner{}, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.JobNames())
	s.Stop()
	<-s.Done()
}

func TestSchedulerRegistersEveryJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(config.SchedulerConfig{Enabled: true, Schedules: defaultSchedules()}, &mockRunner{}, nil)
	require.NoError(t, s.Start(ctx))

	assert.ElementsMatch(t, escalation.Names(), s.JobNames())

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestSchedulerSkipsEmptySchedule(t *testing.T) {
	schedules := defaultSchedules()
	schedules.ExpirePending = ""
	s := New(config.SchedulerConfig{Enabled: true, Schedules: schedules}, &mockRunner{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.NotContains(t, s.JobNames(), escalation.JobExpirePending)
	assert.Len(t, s.JobNames(), 3)
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	schedules := defaultSchedules()
	schedules.ReminderPending = "every morning"
	s := New(config.SchedulerConfig{Enabled: true, Schedules: schedules}, &mockRunner{}, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), escalation.JobReminderPending)
}

func TestExecuteAppliesJobTimeout(t *testing.T) {
	runner := &mockRunner{}
	s := New(config.SchedulerConfig{Enabled: true, JobTimeout: time.Minute}, runner, nil)

	s.execute(escalation.JobReminderPending)
	assert.Equal(t, []string{escalation.JobReminderPending}, runner.calls)
	assert.True(t, runner.deadline)
}

func TestExecuteSurvivesRunnerError(t *testing.T) {
	runner := &mockRunner{err: errors.New("scan failed")}
	s := New(config.SchedulerConfig{Enabled: true}, runner, nil)

	s.execute(escalation.JobExpireWaitinglist)
	assert.Len(t, runner.calls, 1)
	assert.False(t, runner.deadline)
}
