package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a11yscan/grid/pkg/apierror"
	"github.com/a11yscan/grid/pkg/domain/egress"
	"github.com/a11yscan/grid/pkg/logger"
	"github.com/a11yscan/grid/pkg/validator"
)

// EgressHandler manages the rotation pool over the admin API.
type EgressHandler struct {
	pool      *egress.Pool
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEgressHandler creates an egress handler.
func NewEgressHandler(pool *egress.Pool, v *validator.Validator, log *logger.Logger) *EgressHandler {
	return &EgressHandler{
		pool:      pool,
		validator: v,
		logger:    log.With("handler", "egress"),
	}
}

// ListResponse returns the pool contents. Credentials never leave the
// process; Identity strips them on marshal.
type ListResponse struct {
	Identities []egress.Identity `json:"identities"`
	Size       int               `json:"size"`
}

// List handles GET /egress.
func (h *EgressHandler) List(w http.ResponseWriter, _ *http.Request) {
	identities := h.pool.List()
	respondJSON(w, http.StatusOK, ListResponse{
		Identities: identities,
		Size:       len(identities),
	})
}

// AddRequest is the payload for registering an egress identity.
type AddRequest struct {
	Address  string `json:"address" validate:"required,max=255"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Region   string `json:"region" validate:"required,region_code"`
	Carrier  string `json:"carrier" validate:"required,carrier_class"`
	Username string `json:"username" validate:"omitempty,max=255"`
	Password string `json:"password" validate:"omitempty,max=255"`
}

// Add handles POST /egress.
func (h *EgressHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	identity, err := egress.NewIdentity(req.Address, req.Port, req.Region, egress.CarrierClass(req.Carrier))
	if err != nil {
		respondError(w, err)
		return
	}
	identity.Username = req.Username
	identity.Password = req.Password

	if err := h.pool.Add(identity); err != nil {
		respondError(w, err)
		return
	}

	h.logger.Info("egress identity added",
		"address", identity.Address,
		"region", identity.Region,
	)
	respondJSON(w, http.StatusCreated, identity)
}

// Remove handles DELETE /egress/{address}. Removing an unknown address
// is a no-op.
func (h *EgressHandler) Remove(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		apierror.BadRequest("Address is required").WriteJSON(w)
		return
	}

	h.pool.Remove(address)
	h.logger.Info("egress identity removed", "address", address)
	w.WriteHeader(http.StatusNoContent)
}
