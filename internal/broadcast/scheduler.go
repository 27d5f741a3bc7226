package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"purrbot/internal/engagement"
	"purrbot/internal/eventbus"
	logx "purrbot/pkg/logx"
)

func New(cfg Config, gw Gateway, memes engagement.MemeSource, opts Options, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if opts.Rand == nil {
		opts.Rand = engagement.NewRand(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Tables.Phrases) == 0 {
		opts.Tables.Phrases = engagement.DefaultTables().Phrases
	}
	return &Scheduler{
		gw:      gw,
		memes:   memes,
		log:     log,
		bus:     bus,
		tables:  opts.Tables,
		rand:    opts.Rand,
		now:     opts.Now,
		cfg:     cfg.normalized(),
		entries: map[string]cron.EntryID{},
	}
}

// Start creates the cron instance and registers both jobs when enabled.
// Firings derive their context from ctx; Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.stopRun = context.WithCancel(ctx)
	s.startLocked(true)
}

// startLocked builds a fresh cron. kick schedules one interval firing
// FirstRun after now; otherwise the first one is a full interval away.
func (s *Scheduler) startLocked(kick bool) {
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	if s.cfg.Enabled {
		s.registerLocked(kick)
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Bool("enabled", s.cfg.Enabled),
		logx.String("tz", s.cfg.Location.String()),
		logx.Duration("interval", s.cfg.MemeInterval),
		logx.Int("daily_hour", s.cfg.DailyHour),
	)
}

func (s *Scheduler) registerLocked(kick bool) {
	now := s.now().In(s.cfg.Location)

	var every cron.Schedule = cron.Every(s.cfg.MemeInterval)
	intervalNext := now.Add(s.cfg.MemeInterval)
	if kick {
		intervalNext = time.Now().Add(s.cfg.FirstRun)
		every = newKickoff(intervalNext, s.cfg.MemeInterval)
	}
	s.entries[JobInterval] = s.c.Schedule(every, s.job(JobInterval, s.RunInterval))

	daily := newDailyAnchor(now, s.cfg.DailyHour)
	s.entries[JobDaily] = s.c.Schedule(daily, s.job(JobDaily, s.RunDaily))

	s.log.Debug("jobs registered",
		logx.String("interval_next", intervalNext.Format(time.RFC3339)),
		logx.String("daily_next", daily.first.Format(time.RFC3339)),
	)
}

// job binds a run function to a cron.Job with a per-firing timeout.
func (s *Scheduler) job(name string, run func(context.Context) Report) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		base := s.runCtx
		timeout := s.cfg.RunTimeout
		s.mu.Unlock()
		if base == nil {
			return
		}
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		rep := run(ctx)
		if ctx.Err() == context.DeadlineExceeded {
			s.log.Warn("broadcast run timed out", logx.String("job", name), logx.Duration("timeout", timeout), logx.Int("delivered", rep.Delivered))
		}
	})
}

// Stop halts triggering and waits for in-flight firings until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]cron.EntryID{}
	if s.stopRun != nil {
		s.stopRun()
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the config. Schedule changes replace the running cron and
// re-register both jobs; firings already in progress on the old instance run
// to completion. A timeout-only change takes effect on the next firing.
// Enabling broadcasts kicks an interval firing FirstRun later.
func (s *Scheduler) Apply(cfg Config) {
	cfg = cfg.normalized()
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if s.c == nil || !old.scheduleChanged(cfg) {
		return
	}

	s.c.Stop()
	s.entries = map[string]cron.EntryID{}
	s.startLocked(!old.Enabled && cfg.Enabled)
	s.log.Info("schedule reloaded")
}

func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Timezone: s.cfg.Location.String(),
	}
	for _, name := range []string{JobInterval, JobDaily} {
		info := JobInfo{Name: name, Spec: s.specLocked(name)}
		if id, ok := s.entries[name]; ok && s.c != nil {
			e := s.c.Entry(id)
			info.Next = e.Next
			info.Prev = e.Prev
		}
		snap.Jobs = append(snap.Jobs, info)
	}
	return snap
}

func (s *Scheduler) specLocked(name string) string {
	switch name {
	case JobInterval:
		return "@every " + s.cfg.MemeInterval.String()
	case JobDaily:
		return fmt.Sprintf("daily %02d:00 %s", s.cfg.DailyHour, s.cfg.Location)
	}
	return ""
}

// NextDaily is the next daily firing, or the computed anchor when the
// scheduler is not running yet.
func (s *Scheduler) NextDaily() time.Time {
	if j, ok := s.Snapshot().Job(JobDaily); ok && !j.Next.IsZero() {
		return j.Next
	}
	cfg := s.Config()
	return FirstDailyRun(s.now().In(cfg.Location), cfg.DailyHour)
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	// cron logs every wake/run at info; keep that at trace.
	l.log.Trace("cron "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || strings.TrimSpace(k) == "" {
			k = fmt.Sprintf("arg%d", i)
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
