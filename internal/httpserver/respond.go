package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wisbric/confcore/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope: {"error": "<kind>",
// "detail": "<human>", "path"?: "..."}.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Path   string `json:"path,omitempty"`
}

// RespondError writes a JSON error response with an arbitrary kind string,
// for handler-local validation errors that never went through apperr.
func RespondError(w http.ResponseWriter, status int, kind string, detail string) {
	Respond(w, status, ErrorResponse{Error: kind, Detail: detail})
}

// RespondAppErr maps a typed apperr error (or any error) onto the
// taxonomy's HTTP status and writes it in the standard envelope, including
// the failing dotted path for PolicyViolation errors.
func RespondAppErr(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)

	var ae *apperr.Error
	if errors.As(err, &ae) {
		Respond(w, status, ErrorResponse{Error: string(ae.Kind), Detail: ae.Error(), Path: ae.Path})
		return
	}

	Respond(w, status, ErrorResponse{Error: "internal_error", Detail: "an internal error occurred"})
}
