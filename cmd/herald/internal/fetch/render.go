// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package fetch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.astrophena.name/herald/internal/logger"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer loads a page in a browser, runs its scripts and returns the
// resulting HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

const (
	defaultRenderTimeout = 60 * time.Second
	renderRetryDelay     = 500 * time.Millisecond
	videoLinkWait        = 5 * time.Second
	videoLinkSelector    = `a[href*="/video/"]`
)

// Chrome is a [Renderer] that drives a local Chrome or Chromium with
// chromedp.
type Chrome struct {
	// Visible starts the browser with a window, which helps when debugging
	// what the page looks like.
	Visible bool
	// Timeout bounds a single render attempt. Defaults to 60 seconds.
	Timeout time.Duration
	// ExecPath is an optional path to the browser binary.
	ExecPath string

	// overridden in tests
	renderOnce func(ctx context.Context, url string) (string, error)
}

// Render implements [Renderer]. A failed attempt is retried once after a
// short delay.
func (c *Chrome) Render(ctx context.Context, url string) (string, error) {
	once := c.renderOnce
	if once == nil {
		once = c.render
	}
	return retryOnce(ctx, renderRetryDelay, func(attempt int) (string, error) {
		html, err := once(ctx, url)
		if err != nil {
			logger.Get(ctx).Debug("render attempt failed", "url", url, "attempt", attempt, "error", err)
		}
		return html, err
	})
}

func retryOnce[T any](ctx context.Context, delay time.Duration, f func(attempt int) (T, error)) (T, error) {
	v, err := f(1)
	if err == nil {
		return v, nil
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		var zero T
		return zero, errors.Join(err, ctx.Err())
	}
	return f(2)
}

func (c *Chrome) render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.Visible),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(BrowserUserAgent),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	runCtx, cancel := context.WithTimeout(tabCtx, cmp.Or(c.Timeout, defaultRenderTimeout))
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": AcceptLanguage}),
		navigateUntilIdle(url),
		waitOptional(videoLinkSelector, videoLinkWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", url, err)
	}
	return html, nil
}

// navigateUntilIdle navigates to url and waits until the new page reports
// that the network is idle.
func navigateUntilIdle(url string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		w := newIdleWatcher()
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(lctx, w.observe)

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}
		_, loader, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		w.setLoader(loader)

		select {
		case <-w.idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// idleWatcher closes idle on the networkIdle lifecycle event of one document
// loader. Enabling lifecycle events replays the ones of the page already
// loaded in the tab, so events of other loaders are ignored. Events that
// arrive before the loader is known are remembered.
type idleWatcher struct {
	idle chan struct{}

	mu     sync.Mutex
	loader cdp.LoaderID
	seen   map[cdp.LoaderID]bool
	closed bool
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{
		idle: make(chan struct{}),
		seen: make(map[cdp.LoaderID]bool),
	}
}

func (w *idleWatcher) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != "networkIdle" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loader == "" {
		w.seen[e.LoaderID] = true
		return
	}
	if e.LoaderID == w.loader {
		w.closeIdle()
	}
}

func (w *idleWatcher) setLoader(id cdp.LoaderID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loader = id
	if w.seen[id] {
		w.closeIdle()
	}
	w.seen = nil
}

func (w *idleWatcher) closeIdle() {
	if !w.closed {
		w.closed = true
		close(w.idle)
	}
}

// waitOptional waits up to d for sel to appear. Not finding it is not an
// error.
func waitOptional(sel string, d time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		if err := chromedp.WaitReady(sel, chromedp.ByQuery).Do(wctx); err != nil {
			logger.Get(ctx).Debug("video links did not appear", "selector", sel, "error", err)
		}
		return nil
	}
}
