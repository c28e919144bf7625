// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"go.astrophena.name/herald/cmd/herald/internal/config"
	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/cursor"
	"go.astrophena.name/herald/cmd/herald/internal/fetch"
	"go.astrophena.name/herald/internal/cli"
	"go.astrophena.name/herald/internal/httplogger"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/request"
)

const defaultTimezone = "Europe/London"

var (
	errNoSource = errors.New("no such source")
	errConfig   = errors.New("configuration error")
)

func main() { cli.Main(new(app)) }

type app struct {
	init sync.Once

	// configuration
	adminAddr     string
	channelID     string
	chromePath    string
	configPath    string
	cursorStore   string
	dry           bool
	json          bool
	render        bool
	renderTimeout time.Duration
	renderVisible bool
	stateDir      string
	timezone      string
	token         string

	// initialized by doInit
	httpc     *http.Client
	loc       *time.Location
	scrubber  *strings.Replacer
	slog      *slog.Logger
	slogLevel *slog.LevelVar

	// loaded by loadConfig
	cfg     *config.Config
	fetcher *fetch.Fetcher
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.dry, "dry", false, "Enable dry-run mode: don't connect to Discord, print announcements to stdout and keep cursors in memory.")
	fs.BoolVar(&a.json, "json", false, "Output in JSON format (honored in supported commands).")
	fs.StringVar(&a.configPath, "config", "", "Path to the configuration `file`.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// Load configuration from environment variables.
	a.adminAddr = cmp.Or(a.adminAddr, env.Getenv("ADMIN_ADDR"))
	a.channelID = cmp.Or(a.channelID, env.Getenv("CHANNEL_ID"))
	a.chromePath = cmp.Or(a.chromePath, env.Getenv("CHROME_PATH"))
	a.cursorStore = cmp.Or(a.cursorStore, env.Getenv("CURSOR_STORE"))
	a.timezone = cmp.Or(a.timezone, env.Getenv("TIMEZONE"), defaultTimezone)
	a.token = cmp.Or(a.token, env.Getenv("DISCORD_TOKEN"))
	a.stateDir = cmp.Or(a.stateDir, env.Getenv("STATE_DIRECTORY"))
	if a.stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		a.stateDir = filepath.Join(xdgStateHome, "herald")
	}
	a.configPath = cmp.Or(a.configPath, env.Getenv("CONFIG"), filepath.Join(a.stateDir, "config.star"))

	var err error
	if a.render, err = parseBool(env.Getenv("RENDER"), true); err != nil {
		return fmt.Errorf("%w: RENDER: %v", cli.ErrInvalidArgs, err)
	}
	if a.renderVisible, err = parseBool(env.Getenv("RENDER_VISIBLE"), false); err != nil {
		return fmt.Errorf("%w: RENDER_VISIBLE: %v", cli.ErrInvalidArgs, err)
	}
	if s := env.Getenv("RENDER_TIMEOUT"); s != "" {
		if a.renderTimeout, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("%w: RENDER_TIMEOUT: %v", cli.ErrInvalidArgs, err)
		}
	}

	// Initialize internal state.
	if err := a.doInit(ctx); err != nil {
		return err
	}

	// Enable debug logging in dry-run mode.
	if a.dry {
		a.slogLevel.Set(slog.LevelDebug)
	}

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command := env.Args[0]

	switch command {
	case "run":
		return a.scrub(a.run(ctx))
	case "check":
		if len(env.Args) != 2 {
			return fmt.Errorf("%w: check command expects a source name", cli.ErrInvalidArgs)
		}
		return a.scrub(a.check(ctx, env.Stdout, env.Args[1]))
	case "last":
		if len(env.Args) > 2 {
			return fmt.Errorf("%w: last command expects at most one source name", cli.ErrInvalidArgs)
		}
		var name string
		if len(env.Args) == 2 {
			name = env.Args[1]
		}
		return a.last(ctx, env.Stdout, name)
	case "sources":
		return a.listSources(ctx, env.Stdout)
	case "channels":
		return a.scrub(a.listChannels(ctx, env.Stdout))
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func parseBool(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}

func (a *app) doInit(ctx context.Context) error {
	var initErr error
	a.init.Do(func() {
		if a.httpc == nil {
			a.httpc = &http.Client{
				Timeout:   request.DefaultClient.Timeout,
				Transport: httplogger.New(nil),
			}
		}

		if a.token != "" {
			a.scrubber = strings.NewReplacer(
				a.token, "[EXPUNGED]",
			)
		}

		a.loc, initErr = time.LoadLocation(a.timezone)
		if initErr != nil {
			initErr = fmt.Errorf("%w: TIMEZONE: %v", cli.ErrInvalidArgs, initErr)
		}

		l := logger.Get(ctx)
		a.slogLevel = l.Level
		a.slog = l.Logger
	})
	return initErr
}

// scrub removes secrets from err.
func (a *app) scrub(err error) error {
	if err == nil || a.scrubber == nil {
		return err
	}
	scrubbed := a.scrubber.Replace(err.Error())
	if scrubbed == err.Error() {
		return err
	}
	return &scrubbedError{msg: scrubbed, err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

func (a *app) loadConfig(ctx context.Context) error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(ctx, a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	a.cfg = cfg

	if a.fetcher == nil {
		a.fetcher = &fetch.Fetcher{HTTPClient: a.httpc}
	}
	if a.render && a.fetcher.Renderer == nil {
		a.fetcher.Renderer = &fetch.Chrome{
			Visible:  a.renderVisible,
			Timeout:  a.renderTimeout,
			ExecPath: a.chromePath,
		}
	}
	return nil
}

func (a *app) source(name string) (*content.Source, error) {
	for _, src := range a.cfg.Sources {
		if src.Name == name {
			return src, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errNoSource, name)
}

func (a *app) check(ctx context.Context, w io.Writer, name string) error {
	if err := a.loadConfig(ctx); err != nil {
		return err
	}
	src, err := a.source(name)
	if err != nil {
		return err
	}
	item, err := a.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(w, item)
	}
	fmt.Fprintln(w, item.ID)
	if item.Title != "" {
		fmt.Fprintln(w, item.Title)
	}
	return nil
}

func (a *app) last(ctx context.Context, w io.Writer, name string) error {
	if err := a.loadConfig(ctx); err != nil {
		return err
	}
	sources := a.cfg.Sources
	if name != "" {
		src, err := a.source(name)
		if err != nil {
			return err
		}
		sources = []*content.Source{src}
	}

	store, err := cursor.Open(ctx, a.cursorStore, a.stateDir)
	if err != nil {
		return err
	}
	defer cursor.Close(store)

	cursors := make(map[string]string)
	for _, src := range sources {
		id, err := store.Get(ctx, src.Name)
		if err != nil {
			return err
		}
		cursors[src.Name] = id
	}

	if a.json {
		return writeJSON(w, cursors)
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, src := range sources {
		id := cmp.Or(cursors[src.Name], "(none)")
		fmt.Fprintf(tw, "%s\t%s\n", src.Name, id)
	}
	return tw.Flush()
}

func (a *app) listSources(ctx context.Context, w io.Writer) error {
	if err := a.loadConfig(ctx); err != nil {
		return err
	}
	if a.json {
		return writeJSON(w, a.cfg.Sources)
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, src := range a.cfg.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", src.Name, src.Kind, src.Endpoint, src.Interval())
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
