// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	source     TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLite is a [Store] backed by a SQLite database.
type SQLite struct {
	db *sql.DB
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writes, and the database is tiny.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize database: %w", err)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Get implements [Store].
func (s *SQLite) Get(ctx context.Context, source string) (string, error) {
	if err := checkName(source); err != nil {
		return "", err
	}
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT item_id FROM cursors WHERE source = ?", source).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %q: %w", source, err)
	}
	return id, nil
}

// Set implements [Store].
func (s *SQLite) Set(ctx context.Context, source, id string) error {
	if err := checkName(source); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (source, item_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET item_id = excluded.item_id, updated_at = excluded.updated_at`,
		source, id, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set cursor %q: %w", source, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
