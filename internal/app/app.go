package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"purrbot/internal/broadcast"
	"purrbot/internal/config"
	"purrbot/internal/engagement"
	"purrbot/internal/eventbus"
	"purrbot/internal/runtime/supervisor"
	"purrbot/internal/status"
	"purrbot/internal/storage"
	"purrbot/internal/transport"
	"purrbot/internal/transport/discord"
	logx "purrbot/pkg/logx"
)

const (
	// inboxSize is per dispatcher.
	inboxSize      = 256
	dispatchers    = 4
	welcomeTimeout = 15 * time.Second
)

// gateway is the chat session the app drives. *discord.Adapter implements it.
type gateway interface {
	transport.Gateway
	SetSendRate(perSec float64)
}

var _ gateway = (*discord.Adapter)(nil)

// inbound is a message already counted by the engine, waiting for a response.
type inbound struct {
	msg transport.Message
	obs engagement.Observation
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	recorder *storage.Recorder

	gw        gateway
	state     *engagement.State
	engine    *engagement.Engine
	memes     *memeSource
	completer *completer
	sched     *broadcast.Scheduler
	status    *status.Server
	cmds      *CommandRouter

	started time.Time
	inboxes []chan inbound
}

// New loads the config at cfgPath (environment only when empty) and builds
// every component. Nothing connects until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, nil)
	s, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if s.DiscordToken == "" {
		return nil, config.ErrMissingToken
	}

	logSvc, root := logx.New(mapLogConfig(s))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	gw, err := discord.New(discord.Config{
		Token:          s.DiscordToken,
		SendRatePerSec: float64(s.SendRatePerSec),
	}, root.With(logx.String("comp", "discord")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	// Discord log sink posts through the same rate-limited gateway.
	logSvc.SetSender(gw)

	bus := eventbus.New()

	var (
		store    storage.Store
		recorder *storage.Recorder
	)
	if sc, enabled, err := mapStorageConfig(s); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		recorder = storage.NewRecorder(st, bus, sc.Retention, root.With(logx.String("comp", "audit")))
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	rnd := engagement.NewRand(0)
	opts := mapEngagementOptions(s)
	opts.Rand = rnd

	state := engagement.NewState(s.HistorySize)
	memes := newMemeSource(mapMemeOptions(s))
	comp := newCompleter(mapCompletionOptions(s))
	eng := engagement.New(state, gw, memes, comp, opts, root.With(logx.String("comp", "engagement")), bus)
	sched := broadcast.New(mapBroadcastConfig(s), gw, memes, broadcast.Options{
		Tables: opts.Tables,
		Rand:   rnd,
	}, root.With(logx.String("comp", "broadcast")), bus)

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		recorder:  recorder,
		gw:        gw,
		state:     state,
		engine:    eng,
		memes:     memes,
		completer: comp,
		sched:     sched,
		started:   time.Now(),
		inboxes:   newInboxes(dispatchers, inboxSize),
	}
	a.status = status.New(status.SourceFunc(a.stats), root)
	a.cmds = NewCommandRouter(CommandDeps{
		Send:  gw,
		Memes: memes,
		Stats: a.stats,
	}, s.CommandPrefix, s.Welcome, root.With(logx.String("comp", "commands")))

	gw.OnMessage(a.enqueue)
	gw.OnJoin(a.welcome)

	if !comp.Enabled() {
		log.Info("completion disabled (no API key); augmented replies off")
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()
	s := a.cfgm.Settings()

	if err := a.status.Apply(a.sup.Context(), mapStatusConfig(s)); err != nil {
		return err
	}
	if err := a.gw.Start(a.sup.Context()); err != nil {
		return err
	}

	a.startDispatchers()
	a.sched.Start(a.sup.Context())

	if a.recorder != nil {
		a.sup.GoRestart("storage.recorder", a.recorder.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	// Optional: log events for debugging (the recorder subscribes on its own).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("topic", e.Topic), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := s
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest settings.
			drain:
				for {
					select {
					case newer, ok := <-sub:
						if !ok {
							break drain
						}
						next = newer
					default:
						break drain
					}
				}
				a.applySettings(c, lastApplied, next)
				lastApplied = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Bool("broadcast", s.BroadcastEnabled),
		logx.Bool("status", s.StatusEnabled),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applySettings pushes a validated reload into every live component.
func (a *App) applySettings(ctx context.Context, prev, next config.Settings) {
	sections := changedSections(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := logx.String("changed", strings.Join(sections, ","))

	a.logs.Apply(mapLogConfig(next))
	a.engine.Apply(mapEngagementOptions(next))
	a.sched.Apply(mapBroadcastConfig(next))
	a.memes.Apply(mapMemeOptions(next))
	a.completer.Apply(mapCompletionOptions(next))
	a.gw.SetSendRate(float64(next.SendRatePerSec))
	a.cmds.SetPrefix(next.CommandPrefix)
	a.cmds.SetWelcome(next.Welcome)

	if err := a.status.Apply(ctx, mapStatusConfig(next)); err != nil {
		a.log.Warn("status server reconfigure failed", logx.Err(err))
	}

	if prev.DiscordToken != next.DiscordToken {
		a.log.Warn("discord token changed; restart required for changes to take effect")
	}
	if prev.HistorySize != next.HistorySize {
		a.log.Warn("engagement.history_size changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	a.log.Info("config reloaded", changed)
}

func newInboxes(n, size int) []chan inbound {
	out := make([]chan inbound, n)
	for i := range out {
		out[i] = make(chan inbound, size)
	}
	return out
}

// inboxFor pins a channel to one dispatcher so its messages keep their order
// and its cooldown checks never race.
func (a *App) inboxFor(channelID string) chan inbound {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return a.inboxes[h.Sum32()%uint32(len(a.inboxes))]
}

// enqueue runs on the gateway goroutine. The message is counted here, before
// any queue, so a full inbox drops only the response.
func (a *App) enqueue(_ context.Context, m transport.Message) {
	obs := a.engine.Observe(m)
	q := a.inboxFor(m.ChannelID)
	select {
	case q <- inbound{msg: m, obs: obs}:
	default:
		a.log.Warn("inbox full; response skipped",
			logx.String("channel", m.ChannelID),
			logx.String("user", m.AuthorID),
			logx.Int("queue_cap", cap(q)),
		)
	}
}

func (a *App) startDispatchers() {
	for i, q := range a.inboxes {
		q := q
		a.sup.Go(fmt.Sprintf("messages.dispatch.%d", i), func(ctx context.Context) error {
			return a.dispatchLoop(ctx, q)
		})
	}
}

// dispatchLoop answers the messages of its channels one at a time, in
// arrival order. A slow provider call only holds up the channels on q.
func (a *App) dispatchLoop(ctx context.Context, q chan inbound) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-q:
			a.handleMessage(ctx, in)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, in inbound) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic in message handler",
				logx.String("channel", in.msg.ChannelID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	// Commands were counted like any other message; the engine answers first.
	a.engine.Respond(ctx, in.msg, in.obs)
	a.cmds.Handle(ctx, in.msg)
}

// welcome runs on the gateway goroutine; the send happens in the background.
func (a *App) welcome(_ context.Context, c transport.Community) {
	a.sup.Go0("guild.welcome", func(ctx context.Context) {
		wctx, cancel := context.WithTimeout(ctx, welcomeTimeout)
		defer cancel()
		if err := a.cmds.Welcome(wctx, c); err != nil {
			a.log.Warn("could not send welcome message", logx.String("guild_id", c.ID), logx.Err(err))
		}
	})
}

func (a *App) stats() status.Stats {
	es := a.state.Snapshot(a.engine.Options().ActiveThreshold)
	st := status.Stats{
		Servers:      len(a.gw.Communities()),
		UsersTracked: es.TrackedUsers,
		ActiveUsers:  es.ActiveUsers,
		Uptime:       time.Since(a.started).Seconds(),
	}

	snap := a.sched.Snapshot()
	if snap.Enabled {
		st.NextDaily = a.sched.NextDaily()
	}
	for _, j := range snap.Jobs {
		st.Jobs = append(st.Jobs, status.Job{Name: j.Name, Spec: j.Spec, Next: j.Next, Prev: j.Prev})
	}

	rt := &status.Runtime{EventsDropped: a.bus.Dropped()}
	if a.logs != nil {
		rt.LogDropped = a.logs.Dropped()
	}
	if a.sup != nil {
		rt.Goroutines = a.sup.Active()
		rt.Started = a.sup.Started()
		rt.Tasks = a.sup.Snapshot()
	}
	st.Runtime = rt
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component can't stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
				logx.Err(stepCtx.Err()),
			)
		}
	}

	step("broadcast", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("discord", 2*time.Second, a.gw.Stop)
	// Wait for supervised goroutines (dispatchers, recorder, config) before closing storage.
	step("supervisor", 2*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
