// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/internal/logger"

	"github.com/google/uuid"
)

// AnnounceOnce fetches the latest item of the named source and announces it
// unless it was already announced or is being announced by a concurrent call.
//
// The cursor only advances after a successful delivery, so items that could
// not be delivered are tried again on the next call.
func (e *Engine) AnnounceOnce(ctx context.Context, name string) (res Result) {
	res = Result{Source: name, Attempt: uuid.NewString()}
	log := logger.Get(ctx).With("source", name, "attempt", res.Attempt)
	defer func() { logResult(ctx, log, res) }()

	st, ok := e.states[name]
	if !ok {
		res.Outcome, res.Err = FetchFailed, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		return res
	}

	item, err := e.fetcher.Fetch(ctx, st.src)
	if err != nil {
		res.Outcome, res.Err = FetchFailed, err
		if errors.Is(err, content.ErrNotFound) {
			res.Outcome = NotFound
		}
		return res
	}
	res.Item = item

	if outcome, claimed := st.claim(item.ID); !claimed {
		res.Outcome = outcome
		return res
	}
	// The claim is dropped on every path out of here, panics included.
	defer st.release(item.ID)

	// Deliveries of one source happen one at a time, so a slow older
	// delivery can't move the cursor back after a newer one.
	st.deliver.Lock()
	defer st.deliver.Unlock()
	defer func() {
		if r := recover(); r != nil {
			res.Outcome, res.Err = DeliveryFailed, fmt.Errorf("%w: panic: %v", ErrDelivery, r)
		}
	}()

	dest, err := e.notifier.ResolveDestination(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoDestination) {
			err = fmt.Errorf("%w: %w", ErrNoDestination, err)
		}
		res.Outcome, res.Err = SkippedNoDestination, err
		return res
	}

	if err := e.notifier.Send(ctx, dest, e.format(st.src, item)); err != nil {
		res.Outcome, res.Err = DeliveryFailed, fmt.Errorf("%w to %s: %w", ErrDelivery, dest, err)
		return res
	}

	// Delivered. The write must not be abandoned because the caller's
	// context ends now.
	if err := e.advance(context.WithoutCancel(ctx), st, item.ID); err != nil {
		log.Error("saving cursor failed, the item will not be announced again until restart", "id", item.ID, "error", err)
	}
	res.Outcome = Announced
	return res
}

// claim checks id against the cursor and the pending set and, if it's new,
// marks it pending.
func (st *sourceState) claim(id string) (Outcome, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == st.cursor {
		return SkippedDuplicate, false
	}
	if _, ok := st.pending[id]; ok {
		return SkippedPending, false
	}
	st.pending[id] = struct{}{}
	return 0, true
}

func (st *sourceState) release(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.pending, id)
}

// advance moves the cursor to id, persists it and drops the claim. The
// in-memory cursor moves even if persisting fails.
func (e *Engine) advance(ctx context.Context, st *sourceState, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cursor = id
	delete(st.pending, id)
	return e.store.Set(ctx, st.src.Name, id)
}

func logResult(ctx context.Context, log *slog.Logger, res Result) {
	attrs := []any{"outcome", res.Outcome}
	if res.Item.ID != "" {
		attrs = append(attrs, "id", res.Item.ID)
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}

	level := slog.LevelDebug
	switch res.Outcome {
	case Announced:
		level = slog.LevelInfo
	case SkippedNoDestination, DeliveryFailed, FetchFailed:
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "announce attempt finished", attrs...)
}
