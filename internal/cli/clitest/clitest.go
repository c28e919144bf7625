// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs table-driven tests against a [cli.App].
package clitest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.astrophena.name/herald/internal/cli"
)

// Case is one invocation of an application.
type Case[App cli.App] struct {
	// Args are the command-line arguments.
	Args []string
	// Env holds the environment variables visible to the application.
	Env map[string]string

	// WantErr, if set, must match the returned error with errors.Is.
	// Otherwise the application must succeed.
	WantErr error
	// WantInStdout and WantInStderr are substrings the output must contain.
	WantInStdout string
	WantInStderr string
	// WantNothingPrinted requires both outputs to be empty.
	WantNothingPrinted bool

	// Check, if set, inspects the application after it ran.
	Check func(*testing.T, App)
}

// Run runs every case in parallel on a fresh application returned by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			var stdout, stderr bytes.Buffer
			env := &cli.Env{
				Args:   tc.Args,
				Getenv: func(k string) string { return tc.Env[k] },
				Stdin:  strings.NewReader(""),
				Stdout: &stdout,
				Stderr: &stderr,
			}

			err := cli.Run(cli.WithEnv(t.Context(), env), app)
			switch {
			case tc.WantErr == nil && err != nil:
				t.Fatalf("unexpected error: %v\nstderr:\n%s", err, stderr.String())
			case tc.WantErr != nil && !errors.Is(err, tc.WantErr):
				t.Fatalf("want error %v, got %v", tc.WantErr, err)
			}

			if tc.WantNothingPrinted && stdout.Len()+stderr.Len() > 0 {
				t.Errorf("want no output, got stdout %q and stderr %q", stdout.String(), stderr.String())
			}
			if !strings.Contains(stdout.String(), tc.WantInStdout) {
				t.Errorf("stdout must contain %q, got %q", tc.WantInStdout, stdout.String())
			}
			if !strings.Contains(stderr.String(), tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got %q", tc.WantInStderr, stderr.String())
			}

			if tc.Check != nil {
				tc.Check(t, app)
			}
		})
	}
}
