package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeMalformedPayload = "malformed_payload"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeNotFound         = "not_found"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllow   = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidation writes the field-keyed violation map, e.g.
// {"address":["invalid_address"],"serial":["duplicate_serial"]}.
func writeValidation(w http.ResponseWriter, verr *registry.ValidationError) {
	writeJSON(w, http.StatusBadRequest, verr.Fields)
}

// writeRegistryError maps a registry service error to its HTTP response.
// what names the resource in not-found messages.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var (
		verr    *registry.ValidationError
		tooLong *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case errors.As(err, &tooLong):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLong.Limit))
	case errors.Is(err, registry.ErrNotFound):
		writeNotFound(w, what+" not found")
	case errors.Is(err, registry.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, ErrCodeMalformedPayload, "request body must be a JSON object")
	case errors.Is(err, registry.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "record store unavailable")
	default:
		s.logger.Error("unexpected registry error",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "internal server error")
	}
}
