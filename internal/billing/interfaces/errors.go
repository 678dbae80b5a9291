package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	billing "lounge-desk/internal/billing/domain"
)

// StatusFor maps the billing error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, billing.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, billing.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes {"error": ...} with the mapped status.
func RespondError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	message := err.Error()
	var remoteErr *billing.RemoteError
	if errors.As(err, &remoteErr) {
		message = remoteErr.Message
	}
	writeJSON(w, StatusFor(err), map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
