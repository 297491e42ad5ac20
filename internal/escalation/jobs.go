// Package escalation implements the four periodic jobs that find stale
// registrations. Three of them only raise action requests for approval;
// the waiting-list sweep expires registrations directly.
package escalation

import (
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// Job names. They double as DailyJobLog keys and config schedule keys.
const (
	JobReminderPending   = "reminderPending"
	JobLastNoticePending = "lastNoticePending"
	JobExpirePending     = "expirePending"
	JobExpireWaitinglist = "expireWaitinglist"
)

const day = 24 * time.Hour

// pendingJob raises one action type for pending registrations older than
// age whose phase calls for it.
type pendingJob struct {
	name   string
	age    time.Duration
	action model.ActionType
	// summary describes the escalation state in request reasons.
	summary string
}

var pendingJobs = []pendingJob{
	{name: JobReminderPending, age: 5 * day, action: model.ActionSendReminder, summary: "no reminder sent"},
	{name: JobLastNoticePending, age: 7 * day, action: model.ActionSendLastNotice, summary: "reminded, no last notice sent"},
	{name: JobExpirePending, age: 9 * day, action: model.ActionExpireRegistration, summary: "reminder and last notice sent"},
}

// Names lists every job in the order they run on a default schedule.
func Names() []string {
	names := make([]string, 0, len(pendingJobs)+1)
	for _, j := range pendingJobs {
		names = append(names, j.name)
	}
	return append(names, JobExpireWaitinglist)
}

func findPendingJob(name string) (pendingJob, bool) {
	for _, j := range pendingJobs {
		if j.name == name {
			return j, true
		}
	}
	return pendingJob{}, false
}

func (j pendingJob) cutoff(now time.Time) time.Time {
	return now.Add(-j.age)
}

// eligible is the precise predicate applied after the coarse store query.
// The counter conditions come from the registration's phase, so a record
// pushed past the automated path by manual re-sends is never escalated.
func (j pendingJob) eligible(reg *model.Registration, cutoff time.Time) bool {
	if reg.Status != model.StatusPending || reg.CreatedAt.After(cutoff) {
		return false
	}
	next, ok := reg.Phase().NextEscalation()
	return ok && next == j.action && !reg.HasRequest(j.action)
}

func (j pendingJob) reason(reg *model.Registration, now time.Time) string {
	days := int(now.Sub(reg.CreatedAt) / day)
	return fmt.Sprintf("pending since %s (%d days), %s", model.DayKey(reg.CreatedAt), days, j.summary)
}

// waitinglistExpired is the in-memory predicate of the waiting-list sweep.
func waitinglistExpired(reg *model.Registration, now time.Time) bool {
	return reg.IsOnWaitinglist && !reg.Status.Terminal() &&
		reg.WaitinglistExpires != nil && !reg.WaitinglistExpires.After(now)
}
