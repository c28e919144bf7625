// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger carries a structured logger in a context and keeps recent
// log lines around for the admin API.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Logger is a structured logger with an adjustable level.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar

	out io.Writer
}

// New returns a Logger that writes text records to w at info level.
func New(w io.Writer) *Logger {
	return newLogger(w, new(slog.LevelVar))
}

func newLogger(w io.Writer, level *slog.LevelVar) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		Level:  level,
		out:    w,
	}
}

// Tee returns a Logger that writes to both the output of l and w. The
// returned Logger shares its level with l.
func (l *Logger) Tee(w io.Writer) *Logger {
	out := l.out
	if out == nil {
		out = os.Stderr
	}
	return newLogger(io.MultiWriter(out, w), l.Level)
}

type ctxKey struct{}

// Put returns a copy of ctx that carries l.
func Put(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

var fallback = sync.OnceValue(func() *Logger {
	return &Logger{Logger: slog.Default(), Level: new(slog.LevelVar)}
})

// Get returns the Logger carried by ctx, or one backed by [slog.Default].
func Get(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback()
}

// Streamer is an [io.Writer] that remembers the last lines written to it and
// lets HTTP clients follow new ones.
type Streamer struct {
	mu      sync.Mutex
	lines   []string // ring of at most cap(lines) entries
	next    int
	partial string
	subs    map[chan string]struct{}
}

// NewStreamer returns a Streamer that remembers up to size lines.
func NewStreamer(size int) *Streamer {
	return &Streamer{
		lines: make([]string, 0, max(size, 1)),
		subs:  make(map[chan string]struct{}),
	}
}

// Write implements [io.Writer]. Lines are kept with their trailing newline.
// An unterminated tail is held until the rest of the line arrives.
func (s *Streamer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.partial + string(p)
	for {
		line, rest, ok := strings.Cut(text, "\n")
		if !ok {
			break
		}
		s.push(line + "\n")
		text = rest
	}
	s.partial = text
	return len(p), nil
}

func (s *Streamer) push(line string) {
	if len(s.lines) < cap(s.lines) {
		s.lines = append(s.lines, line)
	} else {
		s.lines[s.next] = line
		s.next = (s.next + 1) % len(s.lines)
	}
	for ch := range s.subs {
		select {
		case ch <- line:
		default: // slow subscriber, drop the line
		}
	}
}

// Lines returns the remembered lines, oldest first.
func (s *Streamer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Streamer) snapshot() []string {
	out := make([]string, 0, len(s.lines))
	out = append(out, s.lines[s.next:]...)
	return append(out, s.lines[:s.next]...)
}

// Stream returns the remembered lines and a channel receiving every line
// written afterwards. Call cancel to stop receiving.
func (s *Streamer) Stream() (backlog []string, lines <-chan string, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, cap(s.lines))
	s.subs[ch] = struct{}{}
	return s.snapshot(), ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// ServeHTTP writes the remembered lines and then follows new ones until the
// client goes away. Clients that accept text/event-stream get server-sent
// events of type "logline".
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("Cache-Control", "no-cache")

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	send := func(line string) {
		if sse {
			fmt.Fprintf(w, "event: logline\ndata: %s\n\n", strings.TrimSuffix(line, "\n"))
			return
		}
		io.WriteString(w, line)
	}

	backlog, lines, cancel := s.Stream()
	defer cancel()
	for _, line := range backlog {
		send(line)
	}
	flush()

	for {
		select {
		case line := <-lines:
			send(line)
			flush()
		case <-r.Context().Done():
			return
		}
	}
}
