package escalation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/regflow/internal/metrics"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/notify"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
	"github.com/Shivanand-hulikatti/regflow/internal/service"
)

// ErrUnknownJob is returned by Run for a name outside Names().
var ErrUnknownJob = errors.New("unknown job")

// systemAuthor signs audit comments written by the sweep.
const systemAuthor = "system"

// Lifecycle performs status transitions for the waiting-list sweep.
// changed is false when the registration already had the target status.
type Lifecycle interface {
	Transition(ctx context.Context, id string, req model.TransitionRequest) (reg *model.Registration, changed bool, err error)
}

// RunResult summarises one job run.
type RunResult struct {
	Job     string   `json:"job"`
	Day     string   `json:"day"`
	Matched []string `json:"matched"`
	// Raised counts action requests actually created; duplicates are
	// skipped silently.
	Raised int `json:"raised"`
	// Expired and Notified are set by the waiting-list sweep.
	Expired  int    `json:"expired"`
	Notified int    `json:"notified"`
	Outcome  string `json:"outcome"`
}

// Runner executes escalation jobs. It is safe for concurrent use and every
// run is safe to repeat.
type Runner struct {
	registrations repository.RegistrationStore
	requests      repository.ActionRequestStore
	jobLogs       repository.JobLogStore
	editions      repository.EditionStore
	lifecycle     Lifecycle
	notifier      notify.Notifier
	adminEmails   []string
	opts          service.Options
}

// NewRunner constructs a Runner. adminEmails receive every waiting-list
// summary in addition to the expired registration's edition admins.
func NewRunner(
	store repository.Store,
	lifecycle Lifecycle,
	notifier notify.Notifier,
	adminEmails []string,
	opts service.Options,
) *Runner {
	return &Runner{
		registrations: store.Registrations(),
		requests:      store.Requests(),
		jobLogs:       store.JobLogs(),
		editions:      store.Editions(),
		lifecycle:     lifecycle,
		notifier:      notifier,
		adminEmails:   adminEmails,
		opts:          opts.WithDefaults(),
	}
}

// Run executes one job. A failed scan returns an error and writes no
// DailyJobLog. Once the scan succeeds the log is written before any row is
// touched, and row failures are joined into the returned error alongside a
// non-nil result.
func (r *Runner) Run(ctx context.Context, name string) (*RunResult, error) {
	pj, isPending := findPendingJob(name)
	if !isPending && name != JobExpireWaitinglist {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	logger := r.opts.Logger.With("job", name)
	now := r.opts.Clock()
	start := time.Now()

	var (
		matches []model.Registration
		err     error
	)
	if isPending {
		matches, err = r.scanPending(ctx, pj, now)
	} else {
		matches, err = r.scanWaitinglist(ctx, now)
	}
	if err != nil {
		r.opts.Metrics.JobRuns.WithLabelValues(name, metrics.OutcomeScanFailed).Inc()
		logger.Error("job scan failed", "error", err)
		return nil, fmt.Errorf("%s: scan: %w", name, err)
	}

	result := &RunResult{Job: name, Day: model.DayKey(now), Matched: make([]string, 0, len(matches))}
	for _, reg := range matches {
		result.Matched = append(result.Matched, reg.ID)
	}
	if err := r.writeLog(ctx, result, now); err != nil {
		result.Outcome = metrics.OutcomeLogFailed
		r.opts.Metrics.JobRuns.WithLabelValues(name, result.Outcome).Inc()
		logger.Error("job log write failed", "error", err)
		return result, fmt.Errorf("%s: write job log: %w", name, err)
	}
	r.opts.Metrics.JobMatches.WithLabelValues(name).Add(float64(len(matches)))

	if isPending {
		err = r.raise(ctx, pj, matches, now, result)
	} else {
		err = r.expire(ctx, matches, result)
	}

	result.Outcome = metrics.OutcomeOK
	if err != nil {
		result.Outcome = metrics.OutcomePartial
	}
	r.opts.Metrics.JobRuns.WithLabelValues(name, result.Outcome).Inc()
	logger.Info("job finished",
		"matched", len(matches),
		"raised", result.Raised,
		"expired", result.Expired,
		"outcome", result.Outcome,
		"duration", time.Since(start),
	)
	if err != nil {
		return result, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}

func (r *Runner) scanPending(ctx context.Context, pj pendingJob, now time.Time) ([]model.Registration, error) {
	cutoff := pj.cutoff(now)
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	candidates, err := r.registrations.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(candidates, func(reg model.Registration) bool {
		return !pj.eligible(&reg, cutoff)
	}), nil
}

func (r *Runner) scanWaitinglist(ctx context.Context, now time.Time) ([]model.Registration, error) {
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	candidates, err := r.registrations.ListWaitinglistExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(candidates, func(reg model.Registration) bool {
		return !waitinglistExpired(&reg, now)
	}), nil
}

func (r *Runner) writeLog(ctx context.Context, result *RunResult, now time.Time) error {
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	return r.jobLogs.Write(ctx, model.DailyJobLog{
		Day:       result.Day,
		JobName:   result.Job,
		Count:     len(result.Matched),
		IDs:       result.Matched,
		Timestamp: now,
	})
}

// raise creates one action request per match. The store adds the tag to the
// registration in the same step and ignores duplicates.
func (r *Runner) raise(ctx context.Context, pj pendingJob, matches []model.Registration, now time.Time, result *RunResult) error {
	var errs []error
	for i := range matches {
		reg := &matches[i]
		req := &model.ActionRequest{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			Email:          reg.Email,
			Type:           pj.action,
			Reason:         pj.reason(reg, now),
			Status:         model.RequestPending,
			CreatedAt:      now,
		}
		cctx, cancel := r.opts.CallContext(ctx)
		created, err := r.requests.Raise(cctx, req)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("raise %s for %s: %w", pj.action, reg.ID, err))
			continue
		}
		if !created {
			r.opts.Logger.Debug("action request already raised",
				"job", pj.name,
				"registration_id", reg.ID,
				"type", pj.action,
			)
			continue
		}
		result.Raised++
		r.opts.Metrics.RequestsRaised.WithLabelValues(string(pj.action)).Inc()
	}
	return errors.Join(errs...)
}

// expire runs the waiting-list sweep: expire, notify the participant, then
// send one summary per admin listing the registrations actually expired.
func (r *Runner) expire(ctx context.Context, matches []model.Registration, result *RunResult) error {
	var (
		errs    []error
		expired []*model.Registration
	)
	for _, match := range matches {
		reg, changed, err := r.lifecycle.Transition(ctx, match.ID, model.TransitionRequest{
			Status:  model.StatusExpired,
			Comment: "waiting list expired",
			Author:  systemAuthor,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", match.ID, err))
			continue
		}
		if !changed {
			// Expired by an overlapping run since the scan.
			r.opts.Logger.Info("registration already expired, skipping notice", "registration_id", reg.ID)
			continue
		}
		expired = append(expired, reg)
		result.Expired++

		if _, err := r.send(ctx, notify.ForRegistration(notify.KindExpiration, reg)); err != nil {
			errs = append(errs, fmt.Errorf("expiration notice for %s: %w", reg.ID, err))
			continue
		}
		result.Notified++
	}
	if len(expired) == 0 {
		return errors.Join(errs...)
	}

	recipients := r.summaryRecipients(ctx, expired)
	for _, admin := range slices.Sorted(maps.Keys(recipients)) {
		_, err := r.send(ctx, notify.Message{
			Kind:            notify.KindAdminSummary,
			Recipient:       admin,
			RegistrationIDs: recipients[admin],
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("admin summary to %s: %w", admin, err))
			continue
		}
		result.Notified++
	}
	return errors.Join(errs...)
}

// summaryRecipients maps each admin address to the expired ids it should
// hear about: configured admins get all of them, edition admins get their
// edition's.
func (r *Runner) summaryRecipients(ctx context.Context, expired []*model.Registration) map[string][]string {
	out := make(map[string][]string)
	add := func(email, id string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || slices.Contains(out[email], id) {
			return
		}
		out[email] = append(out[email], id)
	}

	editionAdmins := make(map[string][]string)
	for _, reg := range expired {
		admins, ok := editionAdmins[reg.EditionID]
		if !ok {
			admins = r.editionAdmins(ctx, reg.EditionID)
			editionAdmins[reg.EditionID] = admins
		}
		for _, email := range r.adminEmails {
			add(email, reg.ID)
		}
		for _, email := range admins {
			add(email, reg.ID)
		}
	}
	return out
}

func (r *Runner) editionAdmins(ctx context.Context, editionID string) []string {
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	edition, err := r.editions.Get(ctx, editionID)
	if err != nil {
		r.opts.Logger.Warn("edition lookup failed, using configured admins only",
			"edition_id", editionID,
			"error", err,
		)
		return nil
	}
	return edition.AdminEmails
}

func (r *Runner) send(ctx context.Context, msg notify.Message) (string, error) {
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	return r.notifier.Send(ctx, msg)
}

// Logs returns the DailyJobLog entries written on day ("YYYY-MM-DD").
func (r *Runner) Logs(ctx context.Context, day string) ([]model.DailyJobLog, error) {
	ctx, cancel := r.opts.CallContext(ctx)
	defer cancel()
	return r.jobLogs.ListByDay(ctx, day)
}
