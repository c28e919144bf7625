// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/engine"
	"go.astrophena.name/herald/cmd/herald/internal/reminder"
	"go.astrophena.name/herald/internal/testutil"
)

type fakeAnnouncer struct {
	mu    sync.Mutex
	calls map[string]int
	// If not nil, AnnounceOnce signals entered and waits for release.
	entered chan string
	release chan struct{}
	panics  bool
}

func newFakeAnnouncer() *fakeAnnouncer {
	return &fakeAnnouncer{calls: make(map[string]int)}
}

func (a *fakeAnnouncer) AnnounceOnce(ctx context.Context, source string) engine.Result {
	a.mu.Lock()
	a.calls[source]++
	panics := a.panics
	a.mu.Unlock()
	if panics {
		panic("boom")
	}
	if a.entered != nil {
		a.entered <- source
		<-a.release
	}
	if _, ok := ctx.Deadline(); !ok {
		return engine.Result{Source: source, Outcome: engine.FetchFailed, Err: errors.New("no deadline")}
	}
	return engine.Result{Source: source, Outcome: engine.Announced, Item: content.Item{ID: "https://example.com/" + source}}
}

func (a *fakeAnnouncer) count(source string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[source]
}

func newTestScheduler(t *testing.T, a Announcer, r Reminders) *Scheduler {
	t.Helper()
	s := New(t.Context(), Options{Announcer: a, Reminders: r})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartPollerIdempotent(t *testing.T) {
	t.Parallel()

	a := newFakeAnnouncer()
	s := newTestScheduler(t, a, nil)
	src := &content.Source{Name: "youtube", Kind: content.Feed, PollInterval: time.Hour}

	testutil.AssertEqual(t, s.StartPoller(src), true)
	testutil.AssertEqual(t, s.StartPoller(src), false)

	waitFor(t, "immediate tick", func() bool { return a.count("youtube") == 1 })
	waitFor(t, "status", func() bool { _, ok := s.Statuses()["youtube"]; return ok })

	st := s.Statuses()["youtube"]
	testutil.AssertEqual(t, st.Outcome, engine.Announced)
	testutil.AssertEqual(t, st.Item.ID, "https://example.com/youtube")
	testutil.AssertEqual(t, st.Error, "")
	testutil.AssertEqual(t, len(s.cron.Entries()), 1)
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	a := newFakeAnnouncer()
	a.entered = make(chan string)
	a.release = make(chan struct{})
	s := newTestScheduler(t, a, nil)
	src := &content.Source{Name: "tiktok", Kind: content.Scrape, PollInterval: time.Hour}

	s.StartPoller(src)
	<-a.entered

	// The immediate tick is still blocked, so this one must be skipped.
	testutil.AssertEqual(t, s.Trigger("tiktok"), true)
	time.Sleep(50 * time.Millisecond)
	testutil.AssertEqual(t, a.count("tiktok"), 1)

	close(a.release)
	waitFor(t, "status", func() bool { _, ok := s.Statuses()["tiktok"]; return ok })

	testutil.AssertEqual(t, s.Trigger("unknown"), false)
}

func TestSourcesDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	a := newFakeAnnouncer()
	a.entered = make(chan string, 1)
	a.release = make(chan struct{})
	s := newTestScheduler(t, a, nil)

	s.StartPoller(&content.Source{Name: "tiktok", Kind: content.Scrape, PollInterval: time.Hour})
	testutil.AssertEqual(t, <-a.entered, "tiktok")

	// tiktok is stuck; youtube still gets polled.
	s.StartPoller(&content.Source{Name: "youtube", Kind: content.Feed, PollInterval: time.Hour})
	testutil.AssertEqual(t, <-a.entered, "youtube")

	close(a.release)
}

func TestPollRecoversPanic(t *testing.T) {
	t.Parallel()

	a := newFakeAnnouncer()
	a.panics = true
	s := newTestScheduler(t, a, nil)

	s.StartPoller(&content.Source{Name: "youtube", Kind: content.Feed, PollInterval: time.Hour})
	waitFor(t, "tick", func() bool { return a.count("youtube") == 1 })

	// The poller is still usable after a panic.
	s.Trigger("youtube")
	waitFor(t, "second tick", func() bool { return a.count("youtube") == 2 })
}

type fakeReminders struct {
	mu      sync.Mutex
	checks  []time.Time
	cleanup int
	// Number of calls whose context had no deadline.
	unbounded int
}

func (r *fakeReminders) Check(ctx context.Context, now time.Time) []reminder.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, now)
	r.noteDeadline(ctx)
	return nil
}

func (r *fakeReminders) Cleanup(ctx context.Context, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup++
	r.noteDeadline(ctx)
}

func (r *fakeReminders) noteDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		r.unbounded++
	}
}

func TestStartReminders(t *testing.T) {
	t.Parallel()

	r := new(fakeReminders)
	s := newTestScheduler(t, newFakeAnnouncer(), r)
	fixed := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.StartReminders(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(s.cron.Entries()), 2)

	s.checkReminders()
	s.cleanupReminders()

	r.mu.Lock()
	defer r.mu.Unlock()
	testutil.AssertEqual(t, r.checks, []time.Time{fixed})
	testutil.AssertEqual(t, r.cleanup, 1)
	testutil.AssertEqual(t, r.unbounded, 0)
}

func TestStartRemindersWithoutReminders(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newFakeAnnouncer(), nil)
	if err := s.StartReminders(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(s.cron.Entries()), 0)
}

func TestStopWaitsForRunningPolls(t *testing.T) {
	t.Parallel()

	a := newFakeAnnouncer()
	a.entered = make(chan string)
	a.release = make(chan struct{})
	s := New(t.Context(), Options{Announcer: a})
	s.Start()
	s.StartPoller(&content.Source{Name: "youtube", Kind: content.Feed, PollInterval: time.Hour})
	<-a.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop returned %v, want deadline exceeded", err)
	}

	close(a.release)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}
