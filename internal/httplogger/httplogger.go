// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides an [http.RoundTripper] that logs outgoing
// requests.
package httplogger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.astrophena.name/herald/internal/logger"
)

// New returns an http.RoundTripper that logs every request made through t at
// debug level: method, URL, status code and duration. Records go to the
// logger carried by the request context (see [logger.Get]). If t is nil,
// [http.DefaultTransport] is used.
func New(t http.RoundTripper) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &loggingTransport{transport: t}
}

type loggingTransport struct {
	transport http.RoundTripper
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	log := logger.Get(ctx)
	if !log.Enabled(ctx, slog.LevelDebug) {
		return t.transport.RoundTrip(r)
	}

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	start := now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("url", redact(r)),
		slog.Duration("duration", now().Sub(start)),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	log.LogAttrs(context.WithoutCancel(ctx), slog.LevelDebug, "http request", attrs...)

	return resp, err
}

// redact returns the request URL without user info.
func redact(r *http.Request) string {
	if r.URL.User == nil {
		return r.URL.String()
	}
	u := *r.URL
	u.User = nil
	return u.String()
}
