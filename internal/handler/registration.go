package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// CreateEdition handles POST /editions
func (h *Handler) CreateEdition(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEditionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	edition, err := h.editions.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create edition")
		return
	}

	writeJSON(w, http.StatusCreated, edition)
}

// ListEditions handles GET /editions
func (h *Handler) ListEditions(w http.ResponseWriter, r *http.Request) {
	editions, err := h.editions.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list editions")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if editions == nil {
		editions = []model.Edition{}
	}

	writeJSON(w, http.StatusOK, editions)
}

// GetEdition handles GET /editions/{id}
func (h *Handler) GetEdition(w http.ResponseWriter, r *http.Request) {
	edition, err := h.editions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get edition")
		return
	}

	writeJSON(w, http.StatusOK, edition)
}

// CurrentNumber handles GET /editions/{id}/counter
// The value is a diagnostic read and may trail a concurrent signup.
func (h *Handler) CurrentNumber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	current, err := h.registrations.CurrentNumber(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to read counter")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"edition_id": id, "current": current})
}

// CreateRegistration handles POST /editions/{id}/registrations
// A failed welcome notice is reported in the body; the registration still
// exists and the status is 201.
func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.registrations.Create(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create registration")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// ListRegistrations handles GET /editions/{id}/registrations
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.registrations.ListByEdition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// GetRegistration handles GET /registrations/{id}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get registration")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// RecordPayment handles POST /registrations/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req model.RecordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.registrations.RecordPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to record payment")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// TransitionStatus handles POST /registrations/{id}/status
func (h *Handler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	var req model.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.registrations.TransitionStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to change status")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}
