package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a11yscan/grid/internal/app/grid"
	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/pkg/apierror"
	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/domain/shared"
	"github.com/a11yscan/grid/pkg/logger"
	"github.com/a11yscan/grid/pkg/validator"
)

// GridHandler exposes the scheduling API: enqueue, claim, report, status.
type GridHandler struct {
	service   *grid.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewGridHandler creates a grid handler.
func NewGridHandler(service *grid.Service, v *validator.Validator, log *logger.Logger) *GridHandler {
	return &GridHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "grid"),
	}
}

// EnqueueRequest is the payload for queueing domains.
type EnqueueRequest struct {
	Domains  []string `json:"domains" validate:"required,min=1,max=1000,dive,scan_domain"`
	Priority *int     `json:"priority" validate:"omitempty,min=0,max=100"`
}

// EnqueueResponse returns the created job ids in input order.
type EnqueueResponse struct {
	JobIDs []shared.ID `json:"jobIds"`
}

// Enqueue handles POST /jobs.
func (h *GridHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	priority := scanjob.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	ids, err := h.service.EnqueueDomains(r.Context(), req.Domains, priority)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, EnqueueResponse{JobIDs: ids})
}

// GetJob handles GET /jobs/{jobID}.
func (h *GridHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDFromString(chi.URLParam(r, "jobID"))
	if err != nil {
		apierror.BadRequest("Invalid job id").WriteJSON(w)
		return
	}

	job, err := h.service.Scheduler().Job(id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// NextJob handles GET /jobs/next: a read-only peek at the job the next
// claim would dispatch.
func (h *GridHandler) NextJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Scheduler().NextJob()
	if err != nil {
		if errors.Is(err, scheduler.ErrNoPendingJobs) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Claim handles POST /nodes/{nodeID}/claim. An optional region query
// parameter targets egress selection. Responds 204 when the backlog has
// no eligible job.
func (h *GridHandler) Claim(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	assignment, err := h.service.Claim(r.Context(), nodeID, r.URL.Query().Get("region"))
	if err != nil {
		if errors.Is(err, scheduler.ErrNoPendingJobs) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, assignment)
}

// CompleteRequest carries the opaque scan result.
type CompleteRequest struct {
	Result json.RawMessage `json:"result"`
}

// Complete handles POST /jobs/{jobID}/complete.
func (h *GridHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDFromString(chi.URLParam(r, "jobID"))
	if err != nil {
		apierror.BadRequest("Invalid job id").WriteJSON(w)
		return
	}

	var req CompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.service.Complete(r.Context(), id, req.Result); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FailRequest carries the failure reason.
type FailRequest struct {
	Error string `json:"error" validate:"required,max=2048"`
}

// FailResponse reports whether the failure was absorbed as a retry.
type FailResponse struct {
	Retried bool `json:"retried"`
}

// Fail handles POST /jobs/{jobID}/fail.
func (h *GridHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDFromString(chi.URLParam(r, "jobID"))
	if err != nil {
		apierror.BadRequest("Invalid job id").WriteJSON(w)
		return
	}

	var req FailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	retried, err := h.service.Fail(r.Context(), id, req.Error)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, FailResponse{Retried: retried})
}

// Status handles GET /grid/status.
func (h *GridHandler) Status(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.service.GridStatus())
}

// ListNodes handles GET /nodes.
func (h *GridHandler) ListNodes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Scheduler().Nodes())
}

// GetNode handles GET /nodes/{nodeID}.
func (h *GridHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Scheduler().Node(chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}
