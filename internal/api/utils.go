package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

// statusError is returned by endpoints to pick the response status.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

func statusErrorf(status int, format string, args ...any) error {
	return &statusError{status: status, err: fmt.Errorf(format, args...)}
}

type errorResponse struct {
	Error string `json:"error"`
}

// endpoint adapts a handler returning a JSON body or an error to http.Handler.
type endpoint func(r *http.Request) (any, error)

func (h endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h(r)
	if err != nil {
		status := http.StatusInternalServerError
		var serr *statusError
		if errors.As(err, &serr) {
			status = serr.status
		}

		msg := err.Error()
		if status >= http.StatusInternalServerError {
			slog.Error("status request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			if serr == nil {
				msg = http.StatusText(status)
			}
		}

		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	if res == nil {
		res = struct{}{}
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("error writing response body", "error", err)
	}
}

var queryDecoder = schema.NewDecoder()

func decodeQuery(r *http.Request, dst any) error {
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		return statusErrorf(http.StatusBadRequest, "invalid query parameters: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, statusErrorf(http.StatusBadRequest, "invalid %s: %v", key, err)
	}
	return id, nil
}
