package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/blocsheet/internal/service"
	"github.com/mmynk/blocsheet/internal/storage"
)

// Problem is an RFC7807 problem details body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// writeError maps service errors to HTTP statuses. A validation failure
// returns the validation report as body.
func writeError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, vErr.Result)
	case errors.Is(err, service.ErrStateViolation), errors.Is(err, storage.ErrConflict):
		writeProblem(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeProblem(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &service.InputError{Field: "body", Reason: "malformed JSON", Err: err}
	}
	return nil
}
