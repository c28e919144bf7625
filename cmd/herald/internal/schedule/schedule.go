// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package schedule drives source polling and reminder checks with cron.
package schedule

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/engine"
	"go.astrophena.name/herald/cmd/herald/internal/reminder"
	"go.astrophena.name/herald/internal/logger"
	"go.astrophena.name/herald/internal/util/syncx"

	"github.com/robfig/cron/v3"
)

// DefaultTickTimeout bounds a single poll of a source and a single run of
// the reminder jobs.
const DefaultTickTimeout = 3 * time.Minute

const (
	reminderSpec = "* * * * *"
	cleanupSpec  = "@hourly"
)

// Announcer announces the latest item of a source.
type Announcer interface {
	AnnounceOnce(ctx context.Context, source string) engine.Result
}

// Reminders checks for due reminders.
type Reminders interface {
	Check(ctx context.Context, now time.Time) []reminder.Slot
	Cleanup(ctx context.Context, now time.Time)
}

// Options configure a [Scheduler].
type Options struct {
	Announcer Announcer
	// Reminders is optional.
	Reminders Reminders
	// Location is the time zone cron specs are interpreted in. Defaults to UTC.
	Location *time.Location
	// TickTimeout bounds a single poll or reminder job run. Defaults to
	// DefaultTickTimeout.
	TickTimeout time.Duration
}

// Scheduler runs one poller per source on its own interval, and the reminder
// and ledger cleanup tickers. Pollers of different sources never wait for each
// other; a poll still running when its next one is due makes that one skip.
type Scheduler struct {
	ctx         context.Context
	log         *slog.Logger
	cron        *cron.Cron
	announcer   Announcer
	reminders   Reminders
	tickTimeout time.Duration
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time

	mu      sync.Mutex
	pollers map[string]*poller
	wg      sync.WaitGroup

	status *syncx.Protected[map[string]Status]
}

type poller struct {
	id  cron.EntryID
	job cron.Job
}

// Status is the result of the latest finished poll of a source.
type Status struct {
	Time    time.Time      `json:"time"`
	Outcome engine.Outcome `json:"outcome"`
	Item    content.Item   `json:"item,omitzero"`
	Error   string         `json:"error,omitempty"`
}

// New returns a Scheduler. Jobs run with a context derived from ctx.
func New(ctx context.Context, opts Options) *Scheduler {
	log := logger.Get(ctx).Logger
	loc := cmp.Or(opts.Location, time.UTC)
	return &Scheduler{
		ctx: ctx,
		log: log,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{log}),
		),
		announcer:   opts.Announcer,
		reminders:   opts.Reminders,
		tickTimeout: cmp.Or(opts.TickTimeout, DefaultTickTimeout),
		now:         time.Now,
		pollers:     make(map[string]*poller),
		status:      syncx.Protect(make(map[string]Status)),
	}
}

// wrap adds panic recovery and overlap protection to f.
func (s *Scheduler) wrap(f func()) cron.Job {
	l := cronLogger{s.log}
	return cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(cron.FuncJob(f))
}

// StartPoller starts polling src: once right away and then every
// src.Interval(). It reports whether the poller was started; starting an
// already running poller does nothing.
func (s *Scheduler) StartPoller(src *content.Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pollers[src.Name]; ok {
		return false
	}

	job := s.wrap(func() { s.poll(src) })
	id := s.cron.Schedule(cron.Every(src.Interval()), job)
	s.pollers[src.Name] = &poller{id: id, job: job}
	s.log.Info("started poller", "source", src.Name, "interval", src.Interval())

	s.runAsync(job)
	return true
}

// Trigger polls the named source now, unless a poll of it is already running
// or its poller isn't started. It doesn't wait for the poll to finish.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	p, ok := s.pollers[name]
	s.mu.Unlock()
	if ok {
		s.runAsync(p.job)
	}
	return ok
}

func (s *Scheduler) runAsync(job cron.Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()
}

func (s *Scheduler) poll(src *content.Source) {
	ctx, cancel := context.WithTimeout(s.ctx, s.tickTimeout)
	defer cancel()

	res := s.announcer.AnnounceOnce(ctx, src.Name)
	st := Status{Time: s.now(), Outcome: res.Outcome, Item: res.Item}
	if res.Err != nil {
		st.Error = res.Err.Error()
	}
	s.status.Access(func(m map[string]Status) { m[src.Name] = st })
}

// Statuses returns the latest poll status of every source polled so far.
func (s *Scheduler) Statuses() map[string]Status {
	return syncx.Read(s.status, maps.Clone[map[string]Status])
}

// StartReminders schedules the once-a-minute reminder check and the hourly
// ledger cleanup. It does nothing if there are no reminders.
func (s *Scheduler) StartReminders() error {
	if s.reminders == nil {
		return nil
	}
	if _, err := s.cron.AddJob(reminderSpec, s.wrap(s.checkReminders)); err != nil {
		return err
	}
	if _, err := s.cron.AddJob(cleanupSpec, s.wrap(s.cleanupReminders)); err != nil {
		return err
	}
	s.log.Info("started reminder ticker")
	return nil
}

func (s *Scheduler) checkReminders() {
	ctx, cancel := context.WithTimeout(s.ctx, s.tickTimeout)
	defer cancel()
	s.reminders.Check(ctx, s.now())
}

func (s *Scheduler) cleanupReminders() {
	ctx, cancel := context.WithTimeout(s.ctx, s.tickTimeout)
	defer cancel()
	s.reminders.Cleanup(ctx, s.now())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new jobs and waits for running ones to finish or for
// ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	allDone := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(allDone)
	}()
	select {
	case <-allDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
