// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
	"github.com/Shivanand-hulikatti/regflow/internal/logging"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
	"github.com/Shivanand-hulikatti/regflow/internal/service"
)

// Jobs runs escalation jobs on demand and exposes their logs.
type Jobs interface {
	Run(ctx context.Context, name string) (*escalation.RunResult, error)
	Logs(ctx context.Context, day string) ([]model.DailyJobLog, error)
}

// Handler holds all HTTP handlers of the registration API.
type Handler struct {
	editions      *service.EditionService
	registrations *service.RegistrationService
	approvals     *service.ApprovalService
	jobs          Jobs
	logger        *slog.Logger
}

// New constructs a Handler.
func New(
	editions *service.EditionService,
	registrations *service.RegistrationService,
	approvals *service.ApprovalService,
	jobs Jobs,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		editions:      editions,
		registrations: registrations,
		approvals:     approvals,
		jobs:          jobs,
		logger:        logging.OrDiscard(logger),
	}
}

// Routes builds the router with the global middleware stack.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(h.logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/editions", func(r chi.Router) {
		r.Post("/", h.CreateEdition)
		r.Get("/", h.ListEditions)
		r.Get("/{id}", h.GetEdition)
		r.Get("/{id}/counter", h.CurrentNumber)
		r.Post("/{id}/registrations", h.CreateRegistration)
		r.Get("/{id}/registrations", h.ListRegistrations)
	})

	r.Route("/registrations/{id}", func(r chi.Router) {
		r.Get("/", h.GetRegistration)
		r.Post("/payments", h.RecordPayment)
		r.Post("/status", h.TransitionStatus)
	})

	r.Route("/action-requests", func(r chi.Router) {
		r.Get("/", h.ListActionRequests)
		r.Post("/approve-all", h.ApproveAll)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
	})

	r.Post("/jobs/{name}/run", h.RunJob)
	r.Get("/job-logs", h.ListJobLogs)

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps service and repository errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, escalation.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and replaced by fallback so storage details do not leak.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(fallback,
			"error", err,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
