// Package handler implements the HTTP handlers for the grid API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/a11yscan/grid/pkg/apierror"
	"github.com/a11yscan/grid/pkg/validator"
)

// maxBodySize bounds request bodies; grid payloads are small.
const maxBodySize = 1 << 20 // 1 MiB

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeJSON decodes and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondError maps an error to the API error envelope. Validation
// errors carry their field details.
func respondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		apierror.ValidationFailed("Validation failed", verrs).WriteJSON(w)
		return
	}
	apierror.FromDomainError(err).WriteJSON(w)
}
