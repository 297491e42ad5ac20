// Package memory implements the repository contracts in process. It backs the
// "memory" store driver and the service tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

// Store keeps all collections behind a single mutex, which makes every
// operation linearizable.
type Store struct {
	mu            sync.Mutex
	counters      map[string]int64
	registrations map[string]*model.Registration
	editions      map[string]*model.Edition
	requests      map[string]*model.ActionRequest
	jobLogs       map[string]model.DailyJobLog
	mails         []model.OutboundMail
	now           func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		counters:      make(map[string]int64),
		registrations: make(map[string]*model.Registration),
		editions:      make(map[string]*model.Edition),
		requests:      make(map[string]*model.ActionRequest),
		jobLogs:       make(map[string]model.DailyJobLog),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock used for UpdatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Counters() repository.CounterStore           { return counterStore{s} }
func (s *Store) Registrations() repository.RegistrationStore { return registrationStore{s} }
func (s *Store) Editions() repository.EditionStore           { return editionStore{s} }
func (s *Store) Requests() repository.ActionRequestStore     { return requestStore{s} }
func (s *Store) JobLogs() repository.JobLogStore             { return jobLogStore{s} }
func (s *Store) Outbox() repository.MailOutbox               { return outbox{s} }

// Mails returns a copy of everything enqueued in the outbox.
func (s *Store) Mails() []model.OutboundMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.mails)
}

// ─── Counters ────────────────────────────────────────────────────────────────

type counterStore struct{ s *Store }

func (c counterStore) AllocateNext(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.counters[key]++
	return c.s.counters[key], nil
}

func (c counterStore) ReadCurrent(ctx context.Context, key string) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.counters[key], nil
}

// ─── Registrations ───────────────────────────────────────────────────────────

type registrationStore struct{ s *Store }

func (r registrationStore) Insert(ctx context.Context, reg *model.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.registrations[reg.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.s.registrations {
		if existing.EditionID == reg.EditionID && existing.RegistrationNumber == reg.RegistrationNumber {
			return repository.ErrConflict
		}
	}
	r.s.registrations[reg.ID] = reg.Clone()
	return nil
}

func (r registrationStore) Get(ctx context.Context, id string) (*model.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return reg.Clone(), nil
}

func (r registrationStore) ListByEdition(ctx context.Context, editionID string) ([]model.Registration, error) {
	return r.filter(func(reg *model.Registration) bool {
		return reg.EditionID == editionID
	}, func(a, b model.Registration) int {
		return cmp.Compare(a.RegistrationNumber, b.RegistrationNumber)
	}), nil
}

func (r registrationStore) HasActiveWaitinglist(ctx context.Context, editionID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, reg := range r.s.registrations {
		if reg.EditionID == editionID && reg.IsOnWaitinglist &&
			(reg.Status == model.StatusPending || reg.Status == model.StatusConfirmed) {
			return true, nil
		}
	}
	return false, nil
}

func (r registrationStore) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(reg *model.Registration) bool {
		return reg.Status == model.StatusPending && !reg.CreatedAt.After(cutoff)
	}, byCreatedAt), nil
}

func (r registrationStore) ListWaitinglistExpired(ctx context.Context, now time.Time) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(reg *model.Registration) bool {
		return reg.IsOnWaitinglist && !reg.Status.Terminal() &&
			reg.WaitinglistExpires != nil && !reg.WaitinglistExpires.After(now)
	}, byCreatedAt), nil
}

func (r registrationStore) Update(ctx context.Context, id string, fn func(*model.Registration) error) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.s.now()
	r.s.registrations[id] = next
	return next.Clone(), nil
}

func (r registrationStore) filter(keep func(*model.Registration) bool, order func(a, b model.Registration) int) []model.Registration {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Registration
	for _, reg := range r.s.registrations {
		if keep(reg) {
			out = append(out, *reg.Clone())
		}
	}
	slices.SortFunc(out, order)
	return out
}

func byCreatedAt(a, b model.Registration) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ─── Editions ────────────────────────────────────────────────────────────────

type editionStore struct{ s *Store }

func (e editionStore) Create(ctx context.Context, edition *model.Edition) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if _, ok := e.s.editions[edition.ID]; ok {
		return repository.ErrConflict
	}
	c := *edition
	c.AdminEmails = slices.Clone(edition.AdminEmails)
	e.s.editions[edition.ID] = &c
	return nil
}

func (e editionStore) Get(ctx context.Context, id string) (*model.Edition, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	edition, ok := e.s.editions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *edition
	c.AdminEmails = slices.Clone(edition.AdminEmails)
	return &c, nil
}

func (e editionStore) List(ctx context.Context) ([]model.Edition, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	out := make([]model.Edition, 0, len(e.s.editions))
	for _, edition := range e.s.editions {
		out = append(out, *edition)
	}
	slices.SortFunc(out, func(a, b model.Edition) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// ─── Action requests ─────────────────────────────────────────────────────────

type requestStore struct{ s *Store }

func (q requestStore) Raise(ctx context.Context, req *model.ActionRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	reg, ok := q.s.registrations[req.RegistrationID]
	if !ok {
		return false, repository.ErrNotFound
	}
	for _, existing := range q.s.requests {
		if existing.RegistrationID == req.RegistrationID && existing.Type == req.Type {
			reg.AddRequestTag(req.Type)
			return false, nil
		}
	}
	c := *req
	q.s.requests[req.ID] = &c
	if reg.AddRequestTag(req.Type) {
		reg.UpdatedAt = q.s.now()
	}
	return true, nil
}

func (q requestStore) Get(ctx context.Context, id string) (*model.ActionRequest, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	req, ok := q.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *req
	return &c, nil
}

func (q requestStore) ListPending(ctx context.Context, actionType model.ActionType) ([]model.ActionRequest, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	var out []model.ActionRequest
	for _, req := range q.s.requests {
		if req.Status != model.RequestPending {
			continue
		}
		if actionType != "" && req.Type != actionType {
			continue
		}
		out = append(out, *req)
	}
	slices.SortFunc(out, func(a, b model.ActionRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (q requestStore) MarkActed(ctx context.Context, id string, status model.RequestStatus, actedAt time.Time) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	req, ok := q.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != model.RequestPending {
		return repository.ErrNotPending
	}
	req.Status = status
	req.ActedAt = &actedAt
	return nil
}

// ─── Daily job logs ──────────────────────────────────────────────────────────

type jobLogStore struct{ s *Store }

func jobLogKey(day, jobName string) string { return day + "/" + jobName }

func (j jobLogStore) Write(ctx context.Context, entry model.DailyJobLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	key := jobLogKey(entry.Day, entry.JobName)
	ids := []string{}
	if prev, ok := j.s.jobLogs[key]; ok {
		ids = append(ids, prev.IDs...)
	}
	for _, id := range entry.IDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	entry.IDs = ids
	entry.Count = len(ids)
	j.s.jobLogs[key] = entry
	return nil
}

func (j jobLogStore) Get(ctx context.Context, day, jobName string) (*model.DailyJobLog, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	entry, ok := j.s.jobLogs[jobLogKey(day, jobName)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	entry.IDs = slices.Clone(entry.IDs)
	return &entry, nil
}

func (j jobLogStore) ListByDay(ctx context.Context, day string) ([]model.DailyJobLog, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	var out []model.DailyJobLog
	for _, entry := range j.s.jobLogs {
		if entry.Day == day {
			out = append(out, entry)
		}
	}
	slices.SortFunc(out, func(a, b model.DailyJobLog) int {
		return cmp.Compare(a.JobName, b.JobName)
	})
	return out, nil
}

// ─── Outbox ──────────────────────────────────────────────────────────────────

type outbox struct{ s *Store }

func (o outbox) Enqueue(ctx context.Context, mail *model.OutboundMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	o.s.mails = append(o.s.mails, *mail)
	return nil
}
