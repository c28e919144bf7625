// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package fetch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/request"
)

const (
	// BrowserUserAgent is sent with page requests. Profile pages served to
	// unknown clients don't contain any video links.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
	// AcceptLanguage is sent with page requests and browser renders.
	AcceptLanguage = "en-GB,en-US;q=0.9"
)

func profileURL(base, username string) string { return base + "/@" + username }

// variants returns the page URLs tried for username, in order.
func variants(base, username string) []string {
	p := profileURL(base, username)
	return []string{
		p,
		p + "?lang=en",
		p + "?is_copy_url=1",
	}
}

func (f *Fetcher) fetchScrape(ctx context.Context, src *content.Source) (content.Item, error) {
	log := logger.Get(ctx)
	username := strings.TrimPrefix(strings.TrimSpace(src.Endpoint), "@")
	if username == "" {
		return content.Item{}, fmt.Errorf("%w: %s: empty username", content.ErrFetch, src.Name)
	}
	base := cmp.Or(f.pageBase, tiktokURL)

	body, url, err := f.firstBody(ctx, src, variants(base, username))
	if err != nil {
		return content.Item{}, err
	}
	if body != "" {
		if id, ok := Extract(body, username); ok {
			log.Debug("found item on page", "source", src.Name, "url", url, "id", id)
			return content.Item{ID: id}, nil
		}
		log.Debug("no item on page", "source", src.Name, "url", url, "len", len(body))
	}

	if f.Renderer == nil {
		return content.Item{}, fmt.Errorf("%w: %s: nothing on profile page", content.ErrNotFound, src.Name)
	}

	rendered, err := f.Renderer.Render(ctx, profileURL(base, username))
	if err != nil {
		log.Warn("rendering failed", "source", src.Name, "error", err)
		return content.Item{}, fmt.Errorf("%w: %s: rendering failed: %v", content.ErrNotFound, src.Name, err)
	}
	if id, ok := Extract(rendered, username); ok {
		log.Debug("found item on rendered page", "source", src.Name, "id", id)
		return content.Item{ID: id}, nil
	}
	return content.Item{}, fmt.Errorf("%w: %s: nothing on rendered profile page", content.ErrNotFound, src.Name)
}

// firstBody requests each URL in turn and returns the first non-empty
// response body, regardless of its status code. Later URLs are not tried even
// if nothing can be extracted from that body.
func (f *Fetcher) firstBody(ctx context.Context, src *content.Source, urls []string) (body, url string, err error) {
	log := logger.Get(ctx)
	for _, u := range urls {
		if err := f.rateLimiter().Wait(ctx); err != nil {
			return "", "", fmt.Errorf("%w: %s: %w", content.ErrFetch, src.Name, err)
		}

		b, status, err := f.getPage(ctx, u)
		log.Debug("tried page", "source", src.Name, "url", u, "status", status, "len", len(b), "error", err)
		if len(b) > 0 {
			return string(b), u, nil
		}
	}
	return "", "", nil
}

func (f *Fetcher) getPage(ctx context.Context, url string) (body []byte, status int, err error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(f.PageTimeout, defaultPageTimeout))
	defer cancel()

	b, err := request.Get(ctx, request.Params{
		URL:    url,
		Client: f.httpc(),
		Headers: map[string]string{
			"User-Agent":      BrowserUserAgent,
			"Accept-Language": AcceptLanguage,
		},
	})
	if err == nil {
		return b, 200, nil
	}
	// Blocked or rate limited pages still carry markup worth looking at.
	var se *request.StatusError
	if errors.As(err, &se) {
		return se.Body, se.StatusCode, err
	}
	return nil, 0, err
}
