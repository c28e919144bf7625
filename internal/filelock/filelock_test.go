// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.astrophena.name/herald/internal/testutil"
)

func TestAcquire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("want ErrAlreadyLocked, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("lock must be free after release: %v", err)
	}
	second.Release()
}

func TestAcquireDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock, err := AcquireDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lock.Release() })

	testutil.AssertEqual(t, lock.Path(), filepath.Join(dir, Name))
	testutil.AssertEqual(t, Holder(lock.Path()), os.Getpid())

	_, err = AcquireDir(dir)
	if !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("want ErrAlreadyLocked, got %v", err)
	}
	testutil.AssertHasSubstring(t, err.Error(), fmt.Sprintf("by process %d", os.Getpid()))
}

func TestAcquireDirMissing(t *testing.T) {
	t.Parallel()

	_, err := AcquireDir(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
}

func TestHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cases := map[string]struct {
		path string
		want int
	}{
		"pid":     {path: write("pid", "4242\n"), want: 4242},
		"garbage": {path: write("garbage", "pid=4242\n"), want: 0},
		"empty":   {path: write("empty", ""), want: 0},
		"missing": {path: filepath.Join(dir, "missing"), want: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Holder(tc.path), tc.want)
		})
	}
}

func TestReleaseTwice(t *testing.T) {
	t.Parallel()

	lock, err := Acquire(filepath.Join(t.TempDir(), "state.lock"))
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatal(err)
	}
}
