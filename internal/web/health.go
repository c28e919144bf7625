// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.astrophena.name/herald/internal/util/syncx"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds a single health check.
const CheckTimeout = 5 * time.Second

// Health returns the [HealthHandler] serving /health on mux, registering a
// new one if there is none yet.
func Health(mux *http.ServeMux) *HealthHandler {
	h, pat := mux.Handler(&http.Request{URL: &url.URL{Path: "/health"}})
	if hh, ok := h.(*HealthHandler); ok && pat == "/health" {
		return hh
	}
	hh := &HealthHandler{checks: syncx.Protect(make(map[string]HealthFunc))}
	mux.Handle("/health", hh)
	return hh
}

// HealthHandler reports the state of a service as a set of named checks.
// The response status is 503 if any check fails.
type HealthHandler struct {
	checks *syncx.Protected[map[string]HealthFunc]
}

// HealthFunc reports the state of one subsystem. Checks run concurrently and
// their context expires after [CheckTimeout].
type HealthFunc func(ctx context.Context) (status string, ok bool)

// RegisterFunc adds a check. It panics if name is already taken.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.checks.Access(func(m map[string]HealthFunc) {
		if _, dup := m[name]; dup {
			panic("web: health check " + name + " registered twice")
		}
		m[name] = f
	})
}

// HealthResponse is the body of a /health response.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse is the result of one check.
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := syncx.Read(h.checks, maps.Clone[map[string]HealthFunc])
	names := slices.Sorted(maps.Keys(checks))

	ctx, cancel := context.WithTimeout(r.Context(), CheckTimeout)
	defer cancel()

	results := make([]CheckResponse, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = run(ctx, checks[name])
			return nil
		})
	}
	g.Wait()

	hr := &HealthResponse{OK: true, Checks: make(map[string]CheckResponse, len(names))}
	for i, name := range names {
		hr.Checks[name] = results[i]
		hr.OK = hr.OK && results[i].OK
	}
	if !hr.OK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	RespondJSON(w, hr)
}

// run calls f, giving up when ctx expires.
func run(ctx context.Context, f HealthFunc) CheckResponse {
	done := make(chan CheckResponse, 1)
	go func() {
		status, ok := f(ctx)
		done <- CheckResponse{Status: status, OK: ok}
	}()
	select {
	case cr := <-done:
		return cr
	case <-ctx.Done():
		return CheckResponse{Status: "timed out", OK: false}
	}
}
