// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cursor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.astrophena.name/herald/internal/atomicio"
)

// File is a [Store] keeping one small text file per source in a directory.
type File struct {
	dir string
}

// NewFile returns a [File] store in dir, creating the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

func (s *File) path(source string) string {
	return filepath.Join(s.dir, "last_"+source+".txt")
}

// Get implements [Store].
func (s *File) Get(_ context.Context, source string) (string, error) {
	if err := checkName(source); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.path(source))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Set implements [Store].
func (s *File) Set(_ context.Context, source, id string) error {
	if err := checkName(source); err != nil {
		return err
	}
	return atomicio.WriteFile(s.path(source), []byte(id+"\n"), 0o600)
}
