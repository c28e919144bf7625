// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package fetch

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/request"

	"github.com/mmcdole/gofeed"
)

// FeedURL returns the feed document URL for a feed source endpoint. An
// endpoint that already is an HTTP(S) URL is returned as is, anything else is
// treated as a YouTube channel ID.
func FeedURL(endpoint string) string { return feedURL(youtubeURL, endpoint) }

func feedURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		return endpoint
	}
	return base + "/feeds/videos.xml?channel_id=" + url.QueryEscape(endpoint)
}

func (f *Fetcher) fetchFeed(ctx context.Context, src *content.Source) (content.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(f.FeedTimeout, defaultFeedTimeout))
	defer cancel()

	u := feedURL(cmp.Or(f.feedBase, youtubeURL), src.Endpoint)
	b, err := request.Get(ctx, request.Params{
		URL:     u,
		Client:  f.httpc(),
		Headers: map[string]string{"Accept": "application/atom+xml, application/rss+xml, application/xml;q=0.9, */*;q=0.8"},
	})
	if err != nil {
		return content.Item{}, fmt.Errorf("%w: %s: %w", content.ErrFetch, src.Name, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(b))
	if err != nil {
		return content.Item{}, fmt.Errorf("%w: %s: parsing %s: %w", content.ErrFetch, src.Name, u, err)
	}
	logger.Get(ctx).Debug("fetched feed", "source", src.Name, "url", u, "items", len(feed.Items))

	// Entries are in document order, the first one is the latest.
	if len(feed.Items) == 0 {
		return content.Item{}, fmt.Errorf("%w: %s: feed has no entries", content.ErrNotFound, src.Name)
	}
	first := feed.Items[0]
	link := strings.TrimSpace(first.Link)
	if link == "" {
		return content.Item{}, fmt.Errorf("%w: %s: latest entry has no link", content.ErrNotFound, src.Name)
	}
	return content.Item{
		ID:    link,
		Title: cmp.Or(strings.TrimSpace(first.Title), content.DefaultTitle),
	}, nil
}
