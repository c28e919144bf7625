// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package web serves small read-only JSON APIs.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.astrophena.name/herald/internal/logger"
)

// StatusErr is an error that maps to an HTTP status code. Wrap it to add
// detail:
//
//	return nil, fmt.Errorf("source %q: %w", name, web.ErrNotFound)
type StatusErr int

func (se StatusErr) Error() string { return strings.ToLower(http.StatusText(int(se))) }

// Errors understood by [RespondJSONError].
const (
	ErrBadRequest          StatusErr = http.StatusBadRequest
	ErrNotFound            StatusErr = http.StatusNotFound
	ErrMethodNotAllowed    StatusErr = http.StatusMethodNotAllowed
	ErrInternalServerError StatusErr = http.StatusInternalServerError
)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// JSON is a handler that responds with the indented JSON encoding of the
// value returned by the function, or with [RespondJSONError] if it fails.
type JSON func(r *http.Request) (any, error)

func (f JSON) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v, err := f(r)
	if err != nil {
		RespondJSONError(w, r, err)
		return
	}
	RespondJSON(w, v)
}

// RespondJSON writes v as indented JSON with status 200, or a 500 error if v
// can't be encoded.
func RespondJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, &errorResponse{Status: "error", Error: "encoding response: " + err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(b, '\n'))
}

// RespondJSONError writes err as a JSON error. The status comes from a
// wrapped [StatusErr] and is 500 otherwise, in which case err is also logged.
func RespondJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrInternalServerError
	if !errors.As(err, &status) {
		logger.Get(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, int(status), &errorResponse{Status: "error", Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(b, '\n'))
}

// MethodNotAllowed wraps next to reject requests whose method is not one of
// methods with [ErrMethodNotAllowed].
func MethodNotAllowed(next http.Handler, methods ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(methods, r.Method) {
			w.Header().Set("Allow", strings.Join(methods, ", "))
			RespondJSONError(w, r, fmt.Errorf("%s: %w", r.Method, ErrMethodNotAllowed))
			return
		}
		next.ServeHTTP(w, r)
	})
}
