// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/admin"
	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/cursor"
	"go.astrophena.name/herald/cmd/herald/internal/discord"
	"go.astrophena.name/herald/cmd/herald/internal/engine"
	"go.astrophena.name/herald/cmd/herald/internal/message"
	"go.astrophena.name/herald/cmd/herald/internal/reminder"
	"go.astrophena.name/herald/cmd/herald/internal/schedule"
	"go.astrophena.name/herald/internal/cli"
	"go.astrophena.name/herald/internal/filelock"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/systemd"

	"golang.org/x/sync/errgroup"
)

const (
	// logLines is how many recent log lines the admin API keeps.
	logLines = 500
	// startupConcurrency limits concurrent startup checks.
	startupConcurrency = 4
	// readyTimeout bounds waiting for the Discord session in one-off commands.
	readyTimeout = 30 * time.Second
	// stopTimeout bounds waiting for running polls on shutdown.
	stopTimeout = 30 * time.Second
)

func (a *app) requireDiscord() error {
	if a.token == "" {
		return fmt.Errorf("%w: DISCORD_TOKEN is not set", cli.ErrInvalidArgs)
	}
	return nil
}

func (a *app) run(ctx context.Context) error {
	if err := a.loadConfig(ctx); err != nil {
		return err
	}
	if !a.dry {
		if err := a.requireDiscord(); err != nil {
			return err
		}
		if a.channelID == "" {
			return fmt.Errorf("%w: CHANNEL_ID is not set", cli.ErrInvalidArgs)
		}
	}

	if err := os.MkdirAll(a.stateDir, 0o700); err != nil {
		return err
	}
	lock, err := filelock.AcquireDir(a.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	logs := logger.NewStreamer(logLines)
	ctx = logger.Put(ctx, logger.Get(ctx).Tee(logs))
	log := logger.Get(ctx)

	storeKind := a.cursorStore
	if a.dry {
		storeKind = "mem"
	}
	store, err := cursor.Open(ctx, storeKind, a.stateDir)
	if err != nil {
		return err
	}
	defer cursor.Close(store)

	var (
		notifier engine.Notifier
		sess     *discord.Session
		ready    <-chan struct{}
	)
	if a.dry {
		notifier = &stdoutNotifier{w: cli.GetEnv(ctx).Stdout}
		ch := make(chan struct{})
		close(ch)
		ready = ch
	} else {
		sess, err = discord.NewSession(ctx, a.token)
		if err != nil {
			return err
		}
		notifier = sess.Notifier(a.channelID)
		ready = sess.Ready()
	}

	msgs := &message.Renderer{
		Mention:     a.cfg.Mention,
		ChannelURL:  a.cfg.ChannelURL,
		StreamLinks: a.cfg.StreamLinks,
	}
	eng, err := engine.New(ctx, engine.Options{
		Sources:  a.cfg.Sources,
		Fetcher:  a.fetcher,
		Notifier: notifier,
		Store:    store,
		Format:   msgs.Announcement,
	})
	if err != nil {
		return err
	}

	checker := reminder.NewChecker(a.cfg.Reminders, a.loc, func(ctx context.Context, r *reminder.Reminder, s reminder.Slot) error {
		dest, err := notifier.ResolveDestination(ctx)
		if err != nil {
			return err
		}
		return notifier.Send(ctx, dest, msgs.Reminder(r, s))
	})
	opts := schedule.Options{
		Announcer: eng,
		Location:  a.loc,
	}
	if len(a.cfg.Reminders) > 0 {
		opts.Reminders = checker
	}
	sched := schedule.New(ctx, opts)

	if sess != nil {
		sess.HandleCommands(ctx, discord.NewCommands(a.cfg.Sources, eng.Last))
		if err := sess.Open(); err != nil {
			return err
		}
		defer sess.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil
		}
		if err := a.start(ctx, eng, sched); err != nil {
			return err
		}
		systemd.Notify(ctx, systemd.Ready, systemd.Status(fmt.Sprintf("watching %d sources", len(eng.Sources()))))
		<-ctx.Done()

		systemd.Notify(ctx, systemd.Stopping)
		log.Info("stopping scheduler")
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	g.Go(func() error {
		systemd.WatchdogLoop(ctx)
		return nil
	})

	if a.adminAddr != "" {
		g.Go(func() error {
			return admin.Serve(ctx, a.adminAddr, admin.Options{
				Engine: eng,
				Poller: sched,
				Logs:   logs,
				Connected: func() bool {
					select {
					case <-ready:
						return true
					default:
						return false
					}
				},
				Ledger: checker.Ledger().Len,
			})
		})
	}

	return g.Wait()
}

// start runs the startup checks of scrape sources, then starts pollers and
// the reminder ticker.
func (a *app) start(ctx context.Context, eng *engine.Engine, sched *schedule.Scheduler) error {
	log := logger.Get(ctx)

	var g errgroup.Group
	g.SetLimit(startupConcurrency)
	for _, src := range eng.Sources() {
		if src.Kind != content.Scrape {
			continue
		}
		g.Go(func() error {
			res := eng.AnnounceOnce(ctx, src.Name)
			log.Debug("startup check done", "source", src.Name, "outcome", res.Outcome)
			return nil
		})
	}
	g.Wait()

	for _, src := range eng.Sources() {
		sched.StartPoller(src)
	}
	if err := sched.StartReminders(); err != nil {
		return err
	}
	sched.Start()
	return nil
}

// stdoutNotifier prints announcements instead of delivering them.
type stdoutNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *stdoutNotifier) ResolveDestination(context.Context) (engine.Destination, error) {
	return engine.Destination{ID: "stdout"}, nil
}

func (n *stdoutNotifier) Send(_ context.Context, _ engine.Destination, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.w, text)
	return err
}

func (a *app) listChannels(ctx context.Context, w io.Writer) error {
	if err := a.requireDiscord(); err != nil {
		return err
	}
	sess, err := discord.NewSession(ctx, a.token)
	if err != nil {
		return err
	}
	if err := sess.Open(); err != nil {
		return err
	}
	defer sess.Close()

	select {
	case <-sess.Ready():
	case <-time.After(readyTimeout):
		return fmt.Errorf("discord: session not ready after %v", readyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	channels, err := sess.Channels(ctx)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(w, channels)
	}
	for _, c := range channels {
		fmt.Fprintln(w, c)
	}
	return nil
}
