// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs command-line programs against a swappable environment.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/util/syncx"
	"go.astrophena.name/herald/internal/version"
)

// Main runs app with the operating system environment and exits with status
// 1 if it fails. The context passed to app is canceled on SIGINT or SIGTERM.
func Main(app App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Run(WithEnv(ctx, OSEnv()), app)
	stop()
	if err == nil {
		return
	}
	if !isSilent(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// silentError is an error already reported to the user.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

func isSilent(err error) bool {
	var se *silentError
	return errors.Is(err, flag.ErrHelp) || errors.As(err, &se)
}

// ErrExitVersion is returned by [Run] after it printed the version.
var ErrExitVersion = &silentError{errors.New("version printed")}

// ErrInvalidArgs is wrapped by errors about bad flags, arguments or
// environment variables:
//
//	return fmt.Errorf("%w: CHANNEL_ID is not set", cli.ErrInvalidArgs)
var ErrInvalidArgs = errors.New("invalid arguments")

// App is a command-line application.
type App interface {
	// Run runs the application. The environment is available with [GetEnv]
	// and the logger with [logger.Get].
	Run(context.Context) error
}

// HasFlags is an [App] that defines flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// AppFunc is an [App] without flags.
type AppFunc func(context.Context) error

// Run calls f(ctx).
func (f AppFunc) Run(ctx context.Context) error { return f(ctx) }

// Env is everything an application may take from the outside world.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type envKey struct{}

// WithEnv returns a copy of ctx that carries env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the environment carried by ctx, or [OSEnv] if there is none.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return OSEnv()
}

// OSEnv returns the environment of the current process.
func OSEnv() *Env {
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run parses flags from the environment carried by ctx and runs app.
//
// Besides the flags of app, Run defines -version and -verbose. Debug logging
// is also enabled when the VERBOSE environment variable is true. The context
// passed to app carries a [logger.Logger] writing to standard error.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)
	name := version.CmdName()

	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(env.Stderr)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(flags)
	}
	var showVersion, verbose bool
	if flags.Lookup("version") == nil {
		flags.BoolVar(&showVersion, "version", false, "Show version.")
	}
	if flags.Lookup("verbose") == nil {
		flags.BoolVar(&verbose, "verbose", false, "Enable debug logging.")
	}
	flags.Usage = func() {
		if d := docComment(); d != "" {
			fmt.Fprintln(env.Stderr, d)
		}
		fmt.Fprint(env.Stderr, "Available flags:\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(env.Args); err != nil {
		// The flag package has printed the error and usage.
		return &silentError{err}
	}
	if showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}
	if v := env.Getenv("VERBOSE"); v != "" && !verbose {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: VERBOSE: %v", ErrInvalidArgs, err)
		}
		verbose = b
	}

	runEnv := *env
	runEnv.Args = flags.Args()

	l := logger.New(env.Stderr)
	if verbose {
		l.Level.Set(slog.LevelDebug)
	}
	return app.Run(logger.Put(WithEnv(ctx, &runEnv), l))
}

var (
	docSrc []byte
	doc    syncx.Lazy[string]
)

// SetDocComment sets the source file whose first /* ... */ comment is
// printed as part of the usage message. It is meant to be called from
// init with an embedded doc.go:
//
//	//go:embed doc.go
//	var doc []byte
//
//	func init() { cli.SetDocComment(doc) }
func SetDocComment(src []byte) { docSrc = src }

func docComment() string {
	return doc.Get(func() string { return parseDocComment(string(docSrc)) })
}

func parseDocComment(src string) string {
	_, after, ok := strings.Cut(src, "/*\n")
	if !ok {
		return ""
	}
	body, _, ok := strings.Cut(after, "\n*/")
	if !ok {
		return ""
	}
	return body + "\n"
}
