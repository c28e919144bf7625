// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filelock keeps two processes from sharing one state directory.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyLocked is returned when another process holds the lock.
var ErrAlreadyLocked = errors.New("already locked")

// Name is the lock file created inside a locked directory.
const Name = ".herald.lock"

// Lock is a held advisory lock on a file.
type Lock struct {
	path string
	f    *os.File
}

// Path returns the path of the lock file.
func (l *Lock) Path() string { return l.path }

// AcquireDir locks dir without blocking. The lock file records the process ID
// of the holder, which is reported when the directory is already locked.
func AcquireDir(dir string) (*Lock, error) {
	path := filepath.Join(dir, Name)
	l, err := Acquire(path)
	if errors.Is(err, ErrAlreadyLocked) {
		if pid := Holder(path); pid != 0 {
			return nil, fmt.Errorf("%s: %w by process %d", dir, err, pid)
		}
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	if err != nil {
		return nil, err
	}
	if err := l.record(os.Getpid()); err != nil {
		return nil, errors.Join(err, l.Release())
	}
	return l, nil
}

// Acquire locks path without blocking, creating the file if needed.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		err = ErrAlreadyLocked
	}
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	return &Lock{path: path, f: f}, nil
}

func (l *Lock) record(pid int) error {
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	_, err := l.f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0)
	return err
}

// Holder returns the process ID recorded in the lock file at path, or 0 if
// there is none.
func Holder(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}

// Release unlocks and closes the lock file. Releasing a nil or already
// released Lock does nothing.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return errors.Join(syscall.Flock(int(f.Fd()), syscall.LOCK_UN), f.Close())
}
