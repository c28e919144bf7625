// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/cursor"
	"go.astrophena.name/herald/internal/testutil"
)

const videoID = "https://www.youtube.com/watch?v=abc"

var testSources = []*content.Source{
	{Name: "youtube", Kind: content.Feed, Endpoint: "UCtest"},
	{Name: "tiktok", Kind: content.Scrape, Endpoint: "creator"},
}

type fakeFetcher struct {
	mu    sync.Mutex
	items map[string]content.Item
	errs  map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{items: make(map[string]content.Item), errs: make(map[string]error)}
}

func (f *fakeFetcher) set(source string, item content.Item, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[source] = item
	f.errs[source] = err
}

func (f *fakeFetcher) Fetch(_ context.Context, src *content.Source) (content.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[src.Name]; err != nil {
		return content.Item{}, err
	}
	item, ok := f.items[src.Name]
	if !ok {
		return content.Item{}, content.ErrNotFound
	}
	return item, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []string
	noDest    bool
	sendErr   error
	sendPanic bool
	// If not nil, Send signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (n *fakeNotifier) ResolveDestination(context.Context) (Destination, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.noDest {
		return Destination{}, ErrNoDestination
	}
	return Destination{ID: "123", Name: "#announcements"}, nil
}

func (n *fakeNotifier) Send(_ context.Context, _ Destination, text string) error {
	if n.entered != nil {
		n.entered <- struct{}{}
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendPanic {
		panic("boom")
	}
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, text)
	return nil
}

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) update(f func(n *fakeNotifier)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f(n)
}

func newTestEngine(t *testing.T, f Fetcher, n Notifier, s cursor.Store) *Engine {
	t.Helper()
	e, err := New(context.Background(), Options{
		Sources:  testSources,
		Fetcher:  f,
		Notifier: n,
		Store:    s,
		Format:   func(src *content.Source, item content.Item) string { return src.Name + ": " + item.ID },
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAnnounceOnceRepeatedPolls(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID, Title: "Hello"}, nil)
	n := new(fakeNotifier)
	store := cursor.NewMem()
	e := newTestEngine(t, f, n, store)

	var got []Outcome
	for range 5 {
		got = append(got, e.AnnounceOnce(context.Background(), "youtube").Outcome)
	}
	testutil.AssertEqual(t, got, []Outcome{Announced, SkippedDuplicate, SkippedDuplicate, SkippedDuplicate, SkippedDuplicate})
	testutil.AssertEqual(t, n.sent, []string{"youtube: " + videoID})

	last, _ := e.Last("youtube")
	testutil.AssertEqual(t, last, videoID)
	persisted, err := store.Get(context.Background(), "youtube")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, persisted, videoID)
	testutil.AssertEqual(t, e.Pending("youtube"), 0)
}

func TestAnnounceOnceNewItemAfterOld(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	n := new(fakeNotifier)
	e := newTestEngine(t, f, n, cursor.NewMem())

	for _, id := range []string{"a", "a", "b", "b", "a"} {
		f.set("youtube", content.Item{ID: id}, nil)
		e.AnnounceOnce(context.Background(), "youtube")
	}
	// Only the latest item is tracked, so going back to "a" announces it again.
	testutil.AssertEqual(t, n.sent, []string{"youtube: a", "youtube: b", "youtube: a"})
}

func TestAnnounceOnceConcurrentSameItem(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	n := &fakeNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(t, f, n, cursor.NewMem())

	first := make(chan Result, 1)
	go func() { first <- e.AnnounceOnce(context.Background(), "youtube") }()

	// Wait until the first call is delivering, then poll again.
	<-n.entered
	second := e.AnnounceOnce(context.Background(), "youtube")
	testutil.AssertEqual(t, second.Outcome, SkippedPending)

	close(n.release)
	testutil.AssertEqual(t, (<-first).Outcome, Announced)
	testutil.AssertEqual(t, n.sentCount(), 1)

	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, SkippedDuplicate)
}

// gatedNotifier holds Send of one text until release is closed.
type gatedNotifier struct {
	fakeNotifier
	gated   string
	entered chan struct{}
	release chan struct{}
}

func (n *gatedNotifier) Send(ctx context.Context, dest Destination, text string) error {
	if text == n.gated {
		close(n.entered)
		<-n.release
	}
	return n.fakeNotifier.Send(ctx, dest, text)
}

func TestAnnounceOnceOlderDeliveryFinishesLast(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: "A"}, nil)
	n := &gatedNotifier{gated: "youtube: A", entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(t, f, n, cursor.NewMem())

	first := make(chan Result, 1)
	go func() { first <- e.AnnounceOnce(context.Background(), "youtube") }()
	<-n.entered

	// A newer item shows up while A is still being delivered.
	f.set("youtube", content.Item{ID: "B"}, nil)
	second := make(chan Result, 1)
	go func() { second <- e.AnnounceOnce(context.Background(), "youtube") }()

	select {
	case res := <-second:
		t.Fatalf("B finished (%v) while A was still being delivered", res.Outcome)
	case <-time.After(50 * time.Millisecond):
	}

	close(n.release)
	testutil.AssertEqual(t, (<-first).Outcome, Announced)
	testutil.AssertEqual(t, (<-second).Outcome, Announced)

	last, _ := e.Last("youtube")
	testutil.AssertEqual(t, last, "B")
	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, SkippedDuplicate)
	testutil.AssertEqual(t, n.sent, []string{"youtube: A", "youtube: B"})
}

func TestAnnounceOnceManyConcurrentPolls(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("tiktok", content.Item{ID: "https://www.tiktok.com/@creator/video/1"}, nil)
	n := new(fakeNotifier)
	e := newTestEngine(t, f, n, cursor.NewMem())

	const workers = 64
	var (
		wg       sync.WaitGroup
		outcomes sync.Map
		start    = make(chan struct{})
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcomes.Store(i, e.AnnounceOnce(context.Background(), "tiktok").Outcome)
		}()
	}
	close(start)
	wg.Wait()

	counts := make(map[Outcome]int)
	outcomes.Range(func(_, v any) bool {
		counts[v.(Outcome)]++
		return true
	})
	testutil.AssertEqual(t, counts[Announced], 1)
	testutil.AssertEqual(t, counts[SkippedPending]+counts[SkippedDuplicate], workers-1)
	testutil.AssertEqual(t, n.sentCount(), 1)
	testutil.AssertEqual(t, e.Pending("tiktok"), 0)
}

func TestAnnounceOnceDeliveryFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	n := &fakeNotifier{sendErr: errors.New("403: Missing Permissions")}
	store := cursor.NewMem()
	e := newTestEngine(t, f, n, store)

	res := e.AnnounceOnce(context.Background(), "youtube")
	testutil.AssertEqual(t, res.Outcome, DeliveryFailed)
	if !errors.Is(res.Err, ErrDelivery) {
		t.Fatalf("want ErrDelivery, got %v", res.Err)
	}
	last, _ := e.Last("youtube")
	testutil.AssertEqual(t, last, "")
	testutil.AssertEqual(t, store.Snapshot(), map[string]string{})
	testutil.AssertEqual(t, e.Pending("youtube"), 0)

	// Still eligible on the next poll.
	n.update(func(n *fakeNotifier) { n.sendErr = nil })
	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, Announced)
	testutil.AssertEqual(t, n.sentCount(), 1)
}

func TestAnnounceOnceNoDestination(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	n := &fakeNotifier{noDest: true}
	e := newTestEngine(t, f, n, cursor.NewMem())

	res := e.AnnounceOnce(context.Background(), "youtube")
	testutil.AssertEqual(t, res.Outcome, SkippedNoDestination)
	if !errors.Is(res.Err, ErrNoDestination) {
		t.Fatalf("want ErrNoDestination, got %v", res.Err)
	}
	testutil.AssertEqual(t, e.Pending("youtube"), 0)

	n.update(func(n *fakeNotifier) { n.noDest = false })
	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, Announced)
}

func TestAnnounceOncePanicReleasesClaim(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	n := &fakeNotifier{sendPanic: true}
	e := newTestEngine(t, f, n, cursor.NewMem())

	res := e.AnnounceOnce(context.Background(), "youtube")
	testutil.AssertEqual(t, res.Outcome, DeliveryFailed)
	testutil.AssertEqual(t, e.Pending("youtube"), 0)

	n.update(func(n *fakeNotifier) { n.sendPanic = false })
	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, Announced)
}

func TestAnnounceOnceSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)

	store, err := cursor.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	n := new(fakeNotifier)
	testutil.AssertEqual(t, newTestEngine(t, f, n, store).AnnounceOnce(context.Background(), "youtube").Outcome, Announced)

	// A new process with only the state directory.
	store2, err := cursor.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	n2 := new(fakeNotifier)
	e2 := newTestEngine(t, f, n2, store2)
	testutil.AssertEqual(t, e2.AnnounceOnce(context.Background(), "youtube").Outcome, SkippedDuplicate)
	testutil.AssertEqual(t, n2.sentCount(), 0)
}

func TestAnnounceOnceFetchErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want Outcome
	}{
		"not found":     {err: fmt.Errorf("%w: nothing on page", content.ErrNotFound), want: NotFound},
		"fetch failure": {err: fmt.Errorf("%w: connection reset", content.ErrFetch), want: FetchFailed},
		"other error":   {err: errors.New("weird"), want: FetchFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFakeFetcher()
			f.set("tiktok", content.Item{}, tc.err)
			n := new(fakeNotifier)
			e := newTestEngine(t, f, n, cursor.NewMem())

			res := e.AnnounceOnce(context.Background(), "tiktok")
			testutil.AssertEqual(t, res.Outcome, tc.want)
			testutil.AssertEqual(t, res.Outcome.Retryable(), true)
			testutil.AssertEqual(t, n.sentCount(), 0)
		})
	}
}

func TestAnnounceOnceUnknownSource(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeFetcher(), new(fakeNotifier), cursor.NewMem())
	res := e.AnnounceOnce(context.Background(), "myspace")
	if !errors.Is(res.Err, ErrUnknownSource) {
		t.Fatalf("want ErrUnknownSource, got %v", res.Err)
	}
}

type failingStore struct {
	cursor.Store
	failSet bool
	failGet bool
}

func (s *failingStore) Get(ctx context.Context, source string) (string, error) {
	if s.failGet {
		return "", errors.New("disk on fire")
	}
	return s.Store.Get(ctx, source)
}

func (s *failingStore) Set(ctx context.Context, source, id string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, source, id)
}

func TestAnnounceOnceStoreWriteFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	n := new(fakeNotifier)
	e := newTestEngine(t, f, n, &failingStore{Store: cursor.NewMem(), failSet: true})

	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, Announced)
	// The in-memory cursor still prevents a second announcement.
	testutil.AssertEqual(t, e.AnnounceOnce(context.Background(), "youtube").Outcome, SkippedDuplicate)
	testutil.AssertEqual(t, n.sentCount(), 1)
}

func TestNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, err := New(ctx, Options{
		Sources:  testSources,
		Fetcher:  newFakeFetcher(),
		Notifier: new(fakeNotifier),
		Store:    &failingStore{Store: cursor.NewMem(), failGet: true},
	}); err == nil {
		t.Fatal("want error when cursors can't be loaded")
	}

	if _, err := New(ctx, Options{
		Sources:  []*content.Source{{Name: "a"}, {Name: "a"}},
		Fetcher:  newFakeFetcher(),
		Notifier: new(fakeNotifier),
		Store:    cursor.NewMem(),
	}); err == nil {
		t.Fatal("want error for duplicate sources")
	}

	if _, err := New(ctx, Options{}); err == nil {
		t.Fatal("want error for missing dependencies")
	}

	store := cursor.NewMem()
	if err := store.Set(ctx, "tiktok", "https://www.tiktok.com/@creator/video/9"); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, newFakeFetcher(), new(fakeNotifier), store)
	testutil.AssertEqual(t, e.Cursors(), map[string]string{
		"youtube": "",
		"tiktok":  "https://www.tiktok.com/@creator/video/9",
	})
}

func TestSourcesAreIndependent(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set("youtube", content.Item{ID: videoID}, nil)
	f.set("tiktok", content.Item{ID: "https://www.tiktok.com/@creator/video/1"}, nil)

	blocking := &fakeNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(t, f, &perSourceNotifier{blockOn: "youtube: ", blocking: blocking, free: new(fakeNotifier)}, cursor.NewMem())

	done := make(chan Result, 1)
	go func() { done <- e.AnnounceOnce(context.Background(), "youtube") }()
	<-blocking.entered

	finished := make(chan Outcome, 1)
	go func() {
		finished <- e.AnnounceOnce(context.Background(), "tiktok").Outcome
	}()
	select {
	case o := <-finished:
		testutil.AssertEqual(t, o, Announced)
	case <-time.After(10 * time.Second):
		t.Fatal("a stuck source blocked another one")
	}

	close(blocking.release)
	testutil.AssertEqual(t, (<-done).Outcome, Announced)
}

// perSourceNotifier blocks in Send only for messages with the given prefix.
type perSourceNotifier struct {
	blockOn  string
	blocking *fakeNotifier
	free     *fakeNotifier
}

func (n *perSourceNotifier) ResolveDestination(ctx context.Context) (Destination, error) {
	return n.free.ResolveDestination(ctx)
}

func (n *perSourceNotifier) Send(ctx context.Context, dest Destination, text string) error {
	if strings.HasPrefix(text, n.blockOn) {
		return n.blocking.Send(ctx, dest, text)
	}
	return n.free.Send(ctx, dest, text)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, Announced.String(), "announced")
	testutil.AssertEqual(t, SkippedPending.String(), "skipped_pending")
	testutil.AssertEqual(t, Outcome(0).String(), "unknown")
	testutil.AssertEqual(t, SkippedDuplicate.Retryable(), false)
}
