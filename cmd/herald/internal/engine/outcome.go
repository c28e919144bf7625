// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package engine

import "go.astrophena.name/herald/cmd/herald/internal/content"

// Outcome is what an [Engine.AnnounceOnce] call did.
type Outcome int

const (
	// Announced means the item was new and was delivered.
	Announced Outcome = iota + 1
	// SkippedDuplicate means the item was already announced.
	SkippedDuplicate
	// SkippedPending means the item is being announced by another call.
	SkippedPending
	// SkippedNoDestination means there was nowhere to deliver the item.
	SkippedNoDestination
	// DeliveryFailed means the notifier failed to deliver the item.
	DeliveryFailed
	// NotFound means the source had no recognizable latest item.
	NotFound
	// FetchFailed means the source could not be fetched.
	FetchFailed
)

var outcomeNames = map[Outcome]string{
	Announced:            "announced",
	SkippedDuplicate:     "skipped_duplicate",
	SkippedPending:       "skipped_pending",
	SkippedNoDestination: "skipped_no_destination",
	DeliveryFailed:       "delivery_failed",
	NotFound:             "not_found",
	FetchFailed:          "fetch_failed",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements [encoding.TextMarshaler].
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Retryable reports whether the item stays eligible for the next poll.
func (o Outcome) Retryable() bool {
	switch o {
	case SkippedNoDestination, DeliveryFailed, NotFound, FetchFailed:
		return true
	}
	return false
}

// Result describes an [Engine.AnnounceOnce] call.
type Result struct {
	Source  string       `json:"source"`
	Attempt string       `json:"attempt"`
	Outcome Outcome      `json:"outcome"`
	Item    content.Item `json:"item,omitzero"`
	Err     error        `json:"-"`
}
