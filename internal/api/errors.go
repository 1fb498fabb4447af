package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "unavailable"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeControllerError maps session and field errors onto HTTP statuses.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, iot.ErrNotConnected), errors.Is(err, iot.ErrPublishFailed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, session.ErrHostOnly):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, thing.ErrUnknownField):
		writeNotFound(w, err.Error())
	case errors.Is(err, thing.ErrReadOnlyField), errors.Is(err, thing.ErrInvalidValue):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
