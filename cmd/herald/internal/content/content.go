// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package content defines the sources herald watches and the items it finds
// on them.
package content

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the way a source is read.
type Kind string

const (
	// Feed sources publish an RSS or Atom document.
	Feed Kind = "feed"
	// Scrape sources only have an HTML profile page.
	Scrape Kind = "scrape"
)

// DefaultPollInterval is used when a source doesn't set its own interval.
const DefaultPollInterval = 5 * time.Minute

// DefaultTitle is the title of an item that has none.
const DefaultTitle = "New video"

var (
	// ErrNotFound means the fetch succeeded but no item could be found.
	ErrNotFound = errors.New("no item found")
	// ErrFetch means the source could not be reached or parsed.
	ErrFetch = errors.New("fetch failed")
)

// Source is a named content origin. Sources are immutable after the
// configuration is loaded.
type Source struct {
	// Name identifies the source in cursors, commands and logs.
	Name string `json:"name"`
	// Kind selects the fetch strategy.
	Kind Kind `json:"kind"`
	// Endpoint is a YouTube channel ID or feed URL for feed sources, and a
	// username without the leading @ for scrape sources.
	Endpoint string `json:"endpoint"`
	// PollInterval is how often the source is checked.
	PollInterval time.Duration `json:"poll_interval"`
	// Title is the human-readable name of the content, like "YouTube video".
	Title string `json:"title,omitempty"`
}

func (s *Source) String() string { return fmt.Sprintf("<source name=%q kind=%s>", s.Name, s.Kind) }

// DisplayTitle returns the title used in messages about this source.
func (s *Source) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	switch s.Kind {
	case Feed:
		return "YouTube video"
	case Scrape:
		return "TikTok"
	}
	return s.Name
}

// Interval returns the poll interval, falling back to [DefaultPollInterval].
func (s *Source) Interval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}

// Item is the latest piece of content observed on a source. Two items are the
// same if their IDs are byte-for-byte equal.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}
