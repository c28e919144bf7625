// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads herald configuration from a Starlark file.
//
// A configuration file looks like this:
//
//	mention = "@everyone"
//	channel_url = "https://www.youtube.com/@creator"
//	twitch = "https://www.twitch.tv/creator"
//
//	sources = [
//	    feed(name = "youtube", channel_id = "UCxxxxxxxxxxxxxxxxxxxxxx"),
//	    scrape(name = "tiktok", username = "creator", interval = "10m"),
//	]
//
//	reminders = [
//	    reminder(days = ["monday", "friday"], times = ["19:00"]),
//	]
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/cursor"
	"go.astrophena.name/herald/cmd/herald/internal/message"
	"go.astrophena.name/herald/cmd/herald/internal/reminder"
	"go.astrophena.name/herald/internal/logger"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrInvalid is returned for configuration that can't be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is a loaded configuration.
type Config struct {
	Sources   []*content.Source    `json:"sources"`
	Reminders []*reminder.Reminder `json:"reminders,omitempty"`
	// Mention is prepended to announcements and reminders.
	Mention string `json:"mention"`
	// ChannelURL is linked from reminders.
	ChannelURL string `json:"channel_url,omitempty"`
	// StreamLinks are the livestream links appended to reminders.
	StreamLinks []string `json:"stream_links,omitempty"`
}

// Load reads and parses the configuration file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, path, b)
}

// Parse parses the configuration src. filename is used in error messages.
func Parse(ctx context.Context, filename string, src []byte) (*Config, error) {
	log := logger.Get(ctx)

	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { log.Info(msg, "config", filename) },
		},
		filename,
		src,
		starlark.StringDict{
			"feed":     starlark.NewBuiltin("feed", feedBuiltin),
			"scrape":   starlark.NewBuiltin("scrape", scrapeBuiltin),
			"reminder": starlark.NewBuiltin("reminder", reminderBuiltin),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	c := &Config{Mention: message.DefaultMention}

	sourcesList, ok := globals["sources"].(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%w: sources must be defined and be a list", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i := range sourcesList.Len() {
		sv, ok := sourcesList.Index(i).(*source)
		if !ok {
			return nil, fmt.Errorf("%w: sources[%d] is %s, want feed() or scrape()", ErrInvalid, i, sourcesList.Index(i).Type())
		}
		if seen[sv.src.Name] {
			return nil, fmt.Errorf("%w: duplicate source name %q", ErrInvalid, sv.src.Name)
		}
		seen[sv.src.Name] = true
		c.Sources = append(c.Sources, sv.src)
	}
	if len(c.Sources) == 0 {
		return nil, fmt.Errorf("%w: no sources defined", ErrInvalid)
	}

	if v, ok := globals["reminders"]; ok {
		remindersList, ok := v.(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("%w: reminders must be a list", ErrInvalid)
		}
		for i := range remindersList.Len() {
			rv, ok := remindersList.Index(i).(*reminderValue)
			if !ok {
				return nil, fmt.Errorf("%w: reminders[%d] is %s, want reminder()", ErrInvalid, i, remindersList.Index(i).Type())
			}
			c.Reminders = append(c.Reminders, rv.r)
		}
	}

	if c.Mention, err = stringGlobal(globals, "mention", c.Mention); err != nil {
		return nil, err
	}
	if c.ChannelURL, err = stringGlobal(globals, "channel_url", ""); err != nil {
		return nil, err
	}
	for _, name := range []string{"twitch", "kick"} {
		link, err := stringGlobal(globals, name, "")
		if err != nil {
			return nil, err
		}
		if link != "" {
			c.StreamLinks = append(c.StreamLinks, link)
		}
	}

	return c, nil
}

func stringGlobal(globals starlark.StringDict, name, def string) (string, error) {
	v, ok := globals[name]
	if !ok {
		return def, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %s", ErrInvalid, name, v.Type())
	}
	return s, nil
}

// Starlark values.

type source struct{ src *content.Source }

func (s *source) String() string        { return s.src.String() }
func (s *source) Type() string          { return "source" }
func (s *source) Freeze()               {} // immutable
func (s *source) Truth() starlark.Bool  { return starlark.True }
func (s *source) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", s.Type()) }

func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval %s is too short", d)
	}
	return d, nil
}

func newSource(fn string, kind content.Kind, name, endpoint, title, interval string) (*source, error) {
	if !cursor.ValidName(name) {
		return nil, fmt.Errorf("%s: invalid name %q: only letters, digits, '-' and '_' are allowed", fn, name)
	}
	d, err := parseInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return &source{src: &content.Source{
		Name:         name,
		Kind:         kind,
		Endpoint:     endpoint,
		PollInterval: d,
		Title:        title,
	}}, nil
}

func feedBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	var name, channelID, feedURL, title, interval string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"channel_id?", &channelID,
		"url?", &feedURL,
		"title?", &title,
		"interval?", &interval,
	); err != nil {
		return nil, err
	}
	endpoint := channelID
	switch {
	case channelID != "" && feedURL != "":
		return nil, fmt.Errorf("%s: only one of channel_id and url can be set", b.Name())
	case feedURL != "":
		u, err := url.Parse(feedURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%s: invalid URL %q", b.Name(), feedURL)
		}
		endpoint = feedURL
	case channelID == "":
		return nil, fmt.Errorf("%s: one of channel_id and url must be set", b.Name())
	}
	return newSource(b.Name(), content.Feed, name, endpoint, title, interval)
}

func scrapeBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	var name, username, title, interval string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"username", &username,
		"title?", &title,
		"interval?", &interval,
	); err != nil {
		return nil, err
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" || strings.ContainsAny(username, "/?# ") {
		return nil, fmt.Errorf("%s: invalid username %q", b.Name(), username)
	}
	return newSource(b.Name(), content.Scrape, name, username, title, interval)
}

type reminderValue struct{ r *reminder.Reminder }

func (r *reminderValue) String() string {
	return fmt.Sprintf("<reminder days=%v times=%v>", r.r.Days, r.r.Times)
}
func (r *reminderValue) Type() string          { return "reminder" }
func (r *reminderValue) Freeze()               {} // immutable
func (r *reminderValue) Truth() starlark.Bool  { return starlark.True }
func (r *reminderValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", r.Type()) }

func reminderBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	var (
		days, times *starlark.List
		text        string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"days", &days,
		"times", &times,
		"text?", &text,
	); err != nil {
		return nil, err
	}
	if days.Len() == 0 || times.Len() == 0 {
		return nil, fmt.Errorf("%s: days and times must not be empty", b.Name())
	}

	r := &reminder.Reminder{Text: text}
	for i := range days.Len() {
		s, ok := starlark.AsString(days.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: days[%d] must be a string", b.Name(), i)
		}
		d, err := reminder.ParseWeekday(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		r.Days = append(r.Days, d)
	}
	for i := range times.Len() {
		s, ok := starlark.AsString(times.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: times[%d] must be a string", b.Name(), i)
		}
		slot, err := reminder.ParseSlot(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		r.Times = append(r.Times, slot)
	}
	return &reminderValue{r: r}, nil
}
