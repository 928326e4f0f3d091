package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/powerdeck/internal/dispatch"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain and dispatcher errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownService),
		errors.Is(err, dispatch.ErrRequestNotFound),
		errors.Is(err, dispatch.ErrNoOutput):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrActionNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrRequestRunning),
		errors.Is(err, domain.ErrHostOffline),
		errors.Is(err, domain.ErrAlreadyInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
