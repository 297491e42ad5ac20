package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
)

// EditionService manages edition configuration.
type EditionService struct {
	editions repository.EditionStore
	opts     Options
}

// NewEditionService constructs an EditionService.
func NewEditionService(editions repository.EditionStore, opts Options) *EditionService {
	return &EditionService{editions: editions, opts: opts.WithDefaults()}
}

// Create validates the request and stores a new edition.
func (s *EditionService) Create(ctx context.Context, req model.CreateEditionRequest) (*model.Edition, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: edition name is required", ErrValidation)
	}
	if req.MaxParticipants < 0 {
		return nil, fmt.Errorf("%w: max_participants cannot be negative", ErrValidation)
	}
	if req.MaxParticipants > 100_000 {
		return nil, fmt.Errorf("%w: max_participants cannot exceed 100,000", ErrValidation)
	}
	if req.PaymentRequired < 0 {
		return nil, fmt.Errorf("%w: payment_required cannot be negative", ErrValidation)
	}
	if req.WaitinglistDays < 0 {
		return nil, fmt.Errorf("%w: waitinglist_days cannot be negative", ErrValidation)
	}
	admins := make([]string, 0, len(req.AdminEmails))
	for _, email := range req.AdminEmails {
		email = strings.TrimSpace(strings.ToLower(email))
		if !isValidEmail(email) {
			return nil, fmt.Errorf("%w: admin email %q is not a valid email address", ErrValidation, email)
		}
		admins = append(admins, email)
	}

	edition := &model.Edition{
		ID:              uuid.NewString(),
		Name:            req.Name,
		PaymentRequired: req.PaymentRequired,
		MaxParticipants: req.MaxParticipants,
		WaitinglistDays: req.WaitinglistDays,
		AdminEmails:     admins,
		CreatedAt:       s.opts.Clock(),
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	if err := s.editions.Create(ctx, edition); err != nil {
		return nil, fmt.Errorf("create edition: %w", err)
	}
	return edition, nil
}

// List returns all editions.
func (s *EditionService) List(ctx context.Context) ([]model.Edition, error) {
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	return s.editions.List(ctx)
}

// Get returns a single edition by ID.
func (s *EditionService) Get(ctx context.Context, id string) (*model.Edition, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: edition id is required", ErrValidation)
	}
	ctx, cancel := s.opts.CallContext(ctx)
	defer cancel()
	edition, err := s.editions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get edition: %w", err)
	}
	return edition, nil
}
