// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package message renders the texts herald posts to Discord.
package message

import (
	"fmt"
	"strings"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/reminder"
)

// DefaultMention is prepended to announcements and reminders unless
// configured otherwise.
const DefaultMention = "@everyone"

// Renderer renders announcements and reminders.
type Renderer struct {
	// Mention is prepended to every announcement and reminder. Empty disables
	// it.
	Mention string
	// ChannelURL is linked from reminders.
	ChannelURL string
	// StreamLinks are appended to reminders.
	StreamLinks []string
}

func (r *Renderer) withMention(s string) string {
	if r.Mention == "" {
		return s
	}
	return r.Mention + " " + s
}

// Announcement renders the announcement of item from src.
func (r *Renderer) Announcement(src *content.Source, item content.Item) string {
	switch src.Kind {
	case content.Scrape:
		return r.withMention(fmt.Sprintf("New %s from @%s: %s", src.DisplayTitle(), src.Endpoint, item.ID))
	default:
		title := item.Title
		if title == "" {
			title = content.DefaultTitle
		}
		return r.withMention(fmt.Sprintf("New %s: **%s** — %s", src.DisplayTitle(), title, item.ID))
	}
}

// Reminder renders the reminder rem for slot s.
func (r *Renderer) Reminder(rem *reminder.Reminder, s reminder.Slot) string {
	if rem.Text != "" {
		return r.withMention(rem.Text)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "It's %s — livestream alert :red_circle:!", s.Day)
	if r.ChannelURL != "" {
		fmt.Fprintf(&sb, " Check the channel: %s", r.ChannelURL)
	}
	if links := nonEmpty(r.StreamLinks); len(links) > 0 {
		fmt.Fprintf(&sb, "\n\nThe livestream: %s", strings.Join(links, " "))
	}
	return r.withMention(sb.String())
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LastKnown renders the reply to a command asking for the last item of src.
// id is empty if nothing was announced yet.
func LastKnown(src *content.Source, id string) string {
	if id == "" {
		return fmt.Sprintf("I don't have a last %s saved yet. Wait for the next check (every %s).", src.DisplayTitle(), Interval(src.Interval()))
	}
	return fmt.Sprintf("Latest known %s: %s", src.DisplayTitle(), id)
}

// Interval formats d for humans, like "5 minutes" or "1 hour".
func Interval(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int(d/time.Second), "second")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
