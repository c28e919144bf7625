// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package reminder sends weekly reminders at fixed times of a reference time
// zone, at most once per slot and calendar day.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/util/syncx"
)

const (
	slotLayout = "15:04"
	dateLayout = "2006-01-02"
)

// Reminder is sent on each of Days at each of Times.
type Reminder struct {
	Days  []time.Weekday `json:"days"`
	Times []string       `json:"times"` // "HH:MM"
	// Text is an optional message overriding the default reminder text.
	Text string `json:"text,omitempty"`
}

// ParseSlot parses a time of day in 24-hour HH:MM form and returns it
// normalized ("9:05" becomes "09:05").
func ParseSlot(s string) (string, error) {
	t, err := time.Parse(slotLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Format(slotLayout), nil
}

var weekdays = map[string]time.Weekday{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		weekdays[strings.ToLower(d.String())] = d
	}
}

// ParseWeekday parses an English weekday name, like "Friday".
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// Slot identifies a reminder time on a weekday.
type Slot struct {
	Day  time.Weekday
	Time string
}

func (s Slot) String() string { return s.Day.String() + " " + s.Time }

// Ledger remembers the calendar date each slot was last sent on.
type Ledger struct {
	m *syncx.Protected[map[Slot]string]
}

// NewLedger returns an empty [Ledger].
func NewLedger() *Ledger { return &Ledger{m: syncx.Protect(make(map[Slot]string))} }

// SentOn returns the date (YYYY-MM-DD) the slot was last sent on.
func (l *Ledger) SentOn(s Slot) string {
	return syncx.Read(l.m, func(m map[Slot]string) string { return m[s] })
}

// Mark records that the slot was sent on date.
func (l *Ledger) Mark(s Slot, date string) {
	l.m.Access(func(m map[Slot]string) { m[s] = date })
}

// Purge removes all entries not dated today and returns how many were
// removed.
func (l *Ledger) Purge(today string) (removed int) {
	l.m.Access(func(m map[Slot]string) {
		for s, date := range m {
			if date != today {
				delete(m, s)
				removed++
			}
		}
	})
	return removed
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return syncx.Read(l.m, func(m map[Slot]string) int { return len(m) })
}

// SendFunc delivers the reminder r for slot s.
type SendFunc func(ctx context.Context, r *Reminder, s Slot) error

// Checker decides which reminders are due.
type Checker struct {
	reminders []*Reminder
	loc       *time.Location
	ledger    *Ledger
	send      SendFunc

	mu sync.Mutex // serializes Check
}

// NewChecker returns a Checker for reminders defined in loc.
func NewChecker(reminders []*Reminder, loc *time.Location, send SendFunc) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{
		reminders: reminders,
		loc:       loc,
		ledger:    NewLedger(),
		send:      send,
	}
}

// Ledger returns the ledger of sent reminders.
func (c *Checker) Ledger() *Ledger { return c.ledger }

// Check sends every reminder whose slot matches now (in the reference zone)
// and wasn't sent today yet. A slot is marked only after a successful send.
// It returns the slots that were sent.
func (c *Checker) Check(ctx context.Context, now time.Time) []Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := now.In(c.loc)
	today := t.Format(dateLayout)
	slot := Slot{Day: t.Weekday(), Time: t.Format(slotLayout)}
	log := logger.Get(ctx)

	var sent []Slot
	for _, r := range c.reminders {
		if !slices.Contains(r.Days, slot.Day) {
			continue
		}
		for _, tm := range r.Times {
			norm, err := ParseSlot(tm)
			if err != nil || norm != slot.Time {
				continue
			}
			if c.ledger.SentOn(slot) == today {
				continue
			}
			if err := c.send(ctx, r, slot); err != nil {
				log.Warn("sending reminder failed", "slot", slot, "error", err)
				continue
			}
			c.ledger.Mark(slot, today)
			log.Info("sent reminder", "slot", slot, "date", today)
			sent = append(sent, slot)
		}
	}
	return sent
}

// Cleanup drops ledger entries not dated today, so their slots become
// eligible again on the next occurrence.
func (c *Checker) Cleanup(ctx context.Context, now time.Time) {
	today := now.In(c.loc).Format(dateLayout)
	if n := c.ledger.Purge(today); n > 0 {
		logger.Get(ctx).Log(ctx, slog.LevelDebug, "purged reminder ledger", "removed", n, "today", today)
	}
}
