// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.astrophena.name/herald/internal/logger"

	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds waiting for in-flight requests after the context
// passed to [ListenAndServe] is canceled.
const ShutdownTimeout = 10 * time.Second

// ListenAndServeConfig configures [ListenAndServe].
type ListenAndServeConfig struct {
	// Addr is the TCP address to listen on, like "localhost:8080".
	Addr string
	// Mux is the handler to serve. A /health handler is added to it.
	Mux *http.ServeMux
	// Ready, if set, is called with the bound address before serving.
	Ready func(addr string)
}

var (
	errNoAddr = errors.New("web: no address to listen on")
	errNilMux = errors.New("web: nil mux")
)

// ListenAndServe serves c.Mux until ctx is canceled, then shuts the server
// down. Request contexts derive from ctx and so carry its logger.
func ListenAndServe(ctx context.Context, c *ListenAndServeConfig) error {
	switch {
	case c.Addr == "":
		return errNoAddr
	case c.Mux == nil:
		return errNilMux
	}
	log := logger.Get(ctx)

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	addr := ln.Addr().String()
	Health(c.Mux)

	srv := &http.Server{
		Handler:           c.Mux,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving HTTP", "addr", addr)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if c.Ready != nil {
		c.Ready(addr)
	}
	return g.Wait()
}
