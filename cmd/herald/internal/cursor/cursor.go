// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cursor persists the last announced item of every source.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"

	"go.astrophena.name/herald/internal/util/syncx"
)

// Store is a durable "last announced item ID" slot per source.
//
// Get returns an empty string if nothing was stored for the source yet. Set
// must not return before the value is on stable storage.
type Store interface {
	Get(ctx context.Context, source string) (string, error)
	Set(ctx context.Context, source, id string) error
}

// ErrInvalidName is returned for source names that can't be used as keys.
var ErrInvalidName = errors.New("invalid source name")

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name can be used as a source name.
func ValidName(name string) bool { return nameRe.MatchString(name) }

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open returns the store of the given kind: "file" (the default when kind is
// empty), "sqlite" or "mem". File and SQLite stores keep their data in dir.
func Open(ctx context.Context, kind, dir string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFile(dir)
	case "sqlite":
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, filepath.Join(dir, "cursors.db"))
	case "mem":
		return NewMem(), nil
	default:
		return nil, fmt.Errorf("unknown cursor store %q", kind)
	}
}

// Close closes s if it holds any resources.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Mem is an in-memory [Store]. Its contents are lost on exit.
type Mem struct {
	m *syncx.Protected[map[string]string]
}

// NewMem returns an empty [Mem].
func NewMem() *Mem { return &Mem{m: syncx.Protect(make(map[string]string))} }

// Get implements [Store].
func (s *Mem) Get(_ context.Context, source string) (string, error) {
	if err := checkName(source); err != nil {
		return "", err
	}
	return syncx.Read(s.m, func(m map[string]string) string { return m[source] }), nil
}

// Set implements [Store].
func (s *Mem) Set(_ context.Context, source, id string) error {
	if err := checkName(source); err != nil {
		return err
	}
	s.m.Access(func(m map[string]string) { m[source] = id })
	return nil
}

// Snapshot returns a copy of all stored cursors.
func (s *Mem) Snapshot() map[string]string {
	return syncx.Read(s.m, maps.Clone[map[string]string])
}
