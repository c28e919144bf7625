// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd reports service state to systemd with the sd_notify
// protocol.
//
// The NOTIFY_SOCKET and WATCHDOG_USEC variables are read from the
// environment carried by the context (see [cli.GetEnv]). Outside of systemd
// every function here does nothing.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.astrophena.name/herald/internal/cli"
	"go.astrophena.name/herald/internal/logger"
)

// State is a sd_notify state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that startup is finished.
	Ready State = "READY=1"
	// Stopping tells the service manager that the service is shutting down.
	Stopping State = "STOPPING=1"
	// Watchdog updates the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Status returns a state that sets the status line shown by systemctl.
func Status(s string) State { return State("STATUS=" + s) }

// Notify sends states to systemd. Failures are logged.
func Notify(ctx context.Context, states ...State) {
	socket := cli.GetEnv(ctx).Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}
	if err := notify(socket, states); err != nil {
		logger.Get(ctx).Warn("systemd: notify failed", "error", err)
	}
}

func notify(socket string, states []State) error {
	addr := &net.UnixAddr{Net: "unixgram", Name: socket}
	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	var msg []byte
	for i, s := range states {
		if i > 0 {
			msg = append(msg, '\n')
		}
		msg = append(msg, s...)
	}
	_, err = conn.Write(msg)
	return err
}

// WatchdogLoop updates the watchdog timestamp at half of the interval systemd
// expects until ctx is canceled. It returns right away if the watchdog isn't
// enabled.
func WatchdogLoop(ctx context.Context) {
	s := cli.GetEnv(ctx).Getenv("WATCHDOG_USEC")
	if s == "" {
		return
	}
	interval, err := watchdogInterval(s)
	if err != nil {
		logger.Get(ctx).Warn("systemd: watchdog disabled", "error", err)
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Notify(ctx, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func watchdogInterval(s string) (time.Duration, error) {
	usec, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parsing WATCHDOG_USEC: %w", err)
	}
	if usec <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(usec) * time.Microsecond, nil
}
