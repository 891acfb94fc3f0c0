package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"samples-backend/internal/apperr"
)

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ErrorBody struct {
	Status    int               `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError renders err with the status of its kind. Unexpected errors are
// reported to Sentry and answered with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)

	body := ErrorBody{
		Status:    status,
		Timestamp: Now(),
		Path:      r.URL.Path,
	}

	if kind == apperr.KindUnexpected {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		body.Message = "An unexpected error occurred"
		WriteJSON(w, status, body)
		return
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Errors = appErr.Fields
	}

	WriteJSON(w, status, body)
}

func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
