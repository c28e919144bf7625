// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package admin implements the read-only HTTP API of herald.
package admin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/schedule"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/web"
)

// Engine is the announcement state exposed by the API.
type Engine interface {
	Sources() []*content.Source
	Cursors() map[string]string
	Pending(source string) int
}

// Poller reports the latest poll of each source.
type Poller interface {
	Statuses() map[string]schedule.Status
}

// Options configure the API.
type Options struct {
	Engine Engine
	// Poller, Logs, Connected and Ledger are optional.
	Poller Poller
	Logs   *logger.Streamer
	// Connected reports whether the Discord session is ready.
	Connected func() bool
	// Ledger returns the number of reminders sent today.
	Ledger func() int
}

// SourceInfo describes a source and its state.
type SourceInfo struct {
	*content.Source
	Cursor   string           `json:"cursor,omitempty"`
	Pending  int              `json:"pending"`
	LastPoll *schedule.Status `json:"last_poll,omitempty"`
}

// Mux returns the API handler.
func Mux(opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	get := func(pattern string, h http.Handler) {
		mux.Handle(pattern, web.MethodNotAllowed(h, http.MethodGet, http.MethodHead))
	}

	get("/", web.JSON(func(r *http.Request) (any, error) {
		if r.URL.Path != "/" {
			return nil, fmt.Errorf("%s: %w", r.URL.Path, web.ErrNotFound)
		}
		endpoints := []string{"/api/cursors", "/api/sources", "/health"}
		if opts.Logs != nil {
			endpoints = append(endpoints, "/debug/logs")
		}
		return map[string][]string{"endpoints": endpoints}, nil
	}))

	get("/api/cursors", web.JSON(func(*http.Request) (any, error) {
		return opts.Engine.Cursors(), nil
	}))

	get("/api/sources", web.JSON(func(*http.Request) (any, error) {
		return sourceInfos(opts), nil
	}))

	get("/api/sources/{name}", web.JSON(func(r *http.Request) (any, error) {
		name := r.PathValue("name")
		infos := sourceInfos(opts)
		i := slices.IndexFunc(infos, func(si SourceInfo) bool { return si.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("source %q: %w", name, web.ErrNotFound)
		}
		return infos[i], nil
	}))

	if opts.Logs != nil {
		get("/debug/logs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// ?stream follows new lines until the client goes away.
			if r.URL.Query().Has("stream") || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				opts.Logs.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			for _, line := range opts.Logs.Lines() {
				io.WriteString(w, line)
			}
		}))
	}

	health := web.Health(mux)
	if opts.Connected != nil {
		health.RegisterFunc("discord", func(context.Context) (string, bool) {
			if opts.Connected() {
				return "connected", true
			}
			return "not connected", false
		})
	}
	health.RegisterFunc("sources", func(context.Context) (string, bool) {
		return fmt.Sprintf("%d configured", len(opts.Engine.Sources())), len(opts.Engine.Sources()) > 0
	})
	if opts.Ledger != nil {
		health.RegisterFunc("reminders", func(context.Context) (string, bool) {
			return fmt.Sprintf("%d sent today", opts.Ledger()), true
		})
	}

	return mux
}

func sourceInfos(opts Options) []SourceInfo {
	cursors := opts.Engine.Cursors()
	var statuses map[string]schedule.Status
	if opts.Poller != nil {
		statuses = opts.Poller.Statuses()
	}
	var infos []SourceInfo
	for _, src := range opts.Engine.Sources() {
		si := SourceInfo{
			Source:  src,
			Cursor:  cursors[src.Name],
			Pending: opts.Engine.Pending(src.Name),
		}
		if st, ok := statuses[src.Name]; ok {
			si.LastPoll = &st
		}
		infos = append(infos, si)
	}
	return infos
}

// Serve serves the API on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, opts Options) error {
	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr: addr,
		Mux:  Mux(opts),
	})
}
