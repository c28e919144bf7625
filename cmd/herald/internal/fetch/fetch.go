// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package fetch retrieves the latest item of a content source.
//
// Feed sources are read with gofeed. Scrape sources are fetched as plain HTML
// pages first, and, if nothing is found there, rendered in a headless browser.
// Every failure is reported as [content.ErrFetch] or [content.ErrNotFound];
// callers treat both as "nothing new this time".
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/internal/request"
	"go.astrophena.name/herald/internal/util/syncx"

	"golang.org/x/time/rate"
)

const (
	defaultFeedTimeout = 30 * time.Second
	defaultPageTimeout = 15 * time.Second

	youtubeURL = "https://www.youtube.com"
	tiktokURL  = "https://www.tiktok.com"
)

// Fetcher fetches the latest item of a source. The zero value is ready to
// use, with the browser fallback disabled.
type Fetcher struct {
	// HTTPClient is used for feed and page requests. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
	// Renderer loads a profile page in a browser when plain requests don't
	// find anything. If nil, there is no browser fallback.
	Renderer Renderer
	// Limiter paces page requests. If nil, a limiter allowing one request
	// per second with bursts of three is used.
	Limiter *rate.Limiter
	// FeedTimeout bounds a single feed request. Defaults to 30 seconds.
	FeedTimeout time.Duration
	// PageTimeout bounds a single page request. Defaults to 15 seconds.
	PageTimeout time.Duration

	// overridden in tests
	feedBase string
	pageBase string

	limiter syncx.Lazy[*rate.Limiter]
}

// Fetch returns the latest item of src.
func (f *Fetcher) Fetch(ctx context.Context, src *content.Source) (item content.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			item, err = content.Item{}, fmt.Errorf("%w: %s: panic: %v", content.ErrFetch, src.Name, r)
		}
	}()

	switch src.Kind {
	case content.Feed:
		return f.fetchFeed(ctx, src)
	case content.Scrape:
		return f.fetchScrape(ctx, src)
	default:
		return content.Item{}, fmt.Errorf("%w: %s: unknown source kind %q", content.ErrFetch, src.Name, src.Kind)
	}
}

func (f *Fetcher) httpc() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return request.DefaultClient
}

func (f *Fetcher) rateLimiter() *rate.Limiter {
	if f.Limiter != nil {
		return f.Limiter
	}
	return f.limiter.Get(func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(time.Second), 3)
	})
}
