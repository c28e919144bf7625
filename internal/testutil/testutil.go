// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package testutil contains assertions and file-driven test helpers.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertEqual fails the test with a diff if got and want differ. Nil and
// empty slices and maps are considered equal.
func AssertEqual(t testing.TB, got, want any) {
	t.Helper()
	if diff := cmp.Diff(got, want, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("(-got +want):\n%s", diff)
	}
}

// AssertContains fails the test if s does not contain v.
func AssertContains[S ~[]V, V comparable](t testing.TB, s S, v V) {
	t.Helper()
	if !slices.Contains(s, v) {
		t.Fatalf("%v does not contain %v", s, v)
	}
}

// AssertHasSubstring fails the test if s does not contain substr.
func AssertHasSubstring(t testing.TB, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%q does not contain %q", s, substr)
	}
}

// AssertNoSubstring fails the test if s contains substr.
func AssertNoSubstring(t testing.TB, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Fatalf("%q unexpectedly contains %q", s, substr)
	}
}

// UnmarshalJSON decodes b into a new V or fails the test.
func UnmarshalJSON[V any](t testing.TB, b []byte) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decoding %q: %v", b, err)
	}
	return v
}

// RunGolden runs a parallel subtest for every file matching glob. The output
// of f for a file is compared with the file of the same name ending in
// .golden, or written to it if update is true.
func RunGolden(t *testing.T, glob string, f func(t *testing.T, path string) []byte, update bool) {
	t.Helper()
	paths, err := filepath.Glob(glob)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatalf("no files match %q", glob)
	}

	for _, path := range paths {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		t.Run(filepath.Base(base), func(t *testing.T) {
			t.Parallel()

			got := f(t, path)
			golden := base + ".golden"
			if update {
				if err := os.WriteFile(golden, got, 0o644); err != nil {
					t.Fatal(err)
				}
				return
			}
			want, err := os.ReadFile(golden)
			if err != nil {
				t.Fatalf("%v (run with -update to create it)", err)
			}
			AssertEqual(t, string(got), string(want))
		})
	}
}
