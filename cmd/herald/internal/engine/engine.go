// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package engine decides whether the latest item of a source is new and
// announces every new item exactly once.
//
// For each source the engine keeps the cursor (the last announced item ID,
// mirrored in a [cursor.Store]) and the set of item IDs that are being
// announced right now. Both are only touched under the source's mutex.
// Fetching happens outside of any lock, and deliveries of one source are
// serialized from delivery to cursor update by a second mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/cursor"
	"go.astrophena.name/herald/internal/logger"
)

var (
	// ErrNoDestination is returned by a [Notifier] when there is no channel
	// the message can be delivered to.
	ErrNoDestination = errors.New("no destination available")
	// ErrDelivery wraps errors returned by [Notifier.Send].
	ErrDelivery = errors.New("delivery failed")
	// ErrUnknownSource is returned for source names that are not configured.
	ErrUnknownSource = errors.New("unknown source")
)

// Fetcher returns the latest item of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src *content.Source) (content.Item, error)
}

// Destination is where a [Notifier] delivers messages.
type Destination struct {
	ID   string
	Name string
}

func (d Destination) String() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name + " (" + d.ID + ")"
}

// Notifier delivers text messages.
type Notifier interface {
	// ResolveDestination returns the destination to deliver to, or an error
	// wrapping ErrNoDestination if there is none.
	ResolveDestination(ctx context.Context) (Destination, error)
	// Send delivers text to dest.
	Send(ctx context.Context, dest Destination, text string) error
}

// FormatFunc renders the announcement text of an item.
type FormatFunc func(src *content.Source, item content.Item) string

// Options configure an [Engine].
type Options struct {
	Sources  []*content.Source
	Fetcher  Fetcher
	Notifier Notifier
	Store    cursor.Store
	Format   FormatFunc
}

// Engine announces new items of a fixed set of sources. It is safe for
// concurrent use.
type Engine struct {
	fetcher  Fetcher
	notifier Notifier
	store    cursor.Store
	format   FormatFunc

	sources []*content.Source
	states  map[string]*sourceState
}

type sourceState struct {
	src *content.Source

	// deliver is held while an item is sent and the cursor advanced. It
	// must not be acquired while holding mu.
	deliver sync.Mutex

	mu      sync.Mutex
	cursor  string
	pending map[string]struct{}
}

// New returns an Engine for the given sources, loading their cursors from the
// store.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Fetcher == nil || opts.Notifier == nil || opts.Store == nil {
		return nil, errors.New("engine: Fetcher, Notifier and Store are required")
	}
	e := &Engine{
		fetcher:  opts.Fetcher,
		notifier: opts.Notifier,
		store:    opts.Store,
		format:   opts.Format,
		sources:  opts.Sources,
		states:   make(map[string]*sourceState, len(opts.Sources)),
	}
	if e.format == nil {
		e.format = func(_ *content.Source, item content.Item) string { return item.ID }
	}

	for _, src := range opts.Sources {
		if _, dup := e.states[src.Name]; dup {
			return nil, fmt.Errorf("engine: duplicate source %q", src.Name)
		}
		last, err := e.store.Get(ctx, src.Name)
		if err != nil {
			return nil, fmt.Errorf("engine: loading cursor of %q: %w", src.Name, err)
		}
		e.states[src.Name] = &sourceState{
			src:     src,
			cursor:  last,
			pending: make(map[string]struct{}),
		}
		logger.Get(ctx).Debug("loaded cursor", "source", src.Name, "cursor", last)
	}
	return e, nil
}

// Sources returns the configured sources in configuration order.
func (e *Engine) Sources() []*content.Source { return e.sources }

// Source returns the source with the given name.
func (e *Engine) Source(name string) (*content.Source, bool) {
	st, ok := e.states[name]
	if !ok {
		return nil, false
	}
	return st.src, true
}

// Last returns the last announced item ID of a source, or an empty string if
// nothing was announced yet.
func (e *Engine) Last(name string) (id string, ok bool) {
	st, ok := e.states[name]
	if !ok {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cursor, true
}

// Cursors returns the last announced item ID of every source.
func (e *Engine) Cursors() map[string]string {
	m := make(map[string]string, len(e.states))
	for name := range e.states {
		m[name], _ = e.Last(name)
	}
	return m
}

// Pending returns the number of items of a source being announced right now.
func (e *Engine) Pending(name string) int {
	st, ok := e.states[name]
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.pending)
}
