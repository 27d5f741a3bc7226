package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purrbot/internal/broadcast"
	"purrbot/internal/config"
	"purrbot/internal/engagement"
	"purrbot/internal/eventbus"
	"purrbot/internal/runtime/supervisor"
	"purrbot/internal/status"
	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

type fakeGateway struct {
	fakeSender

	hold chan struct{} // non-nil: embeds wait until closed

	rateMu      sync.Mutex
	rate        float64
	communities []transport.Community
}

func (g *fakeGateway) SendEmbed(ctx context.Context, channelID string, e transport.Embed) error {
	if g.hold != nil {
		select {
		case <-g.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.fakeSender.SendEmbed(ctx, channelID, e)
}

func (g *fakeGateway) Communities() []transport.Community { return g.communities }
func (g *fakeGateway) OnMessage(transport.MessageHandler) {}
func (g *fakeGateway) OnJoin(transport.JoinHandler) {}
func (g *fakeGateway) Start(context.Context) error { return nil }
func (g *fakeGateway) Stop(context.Context) error { return nil }

func (g *fakeGateway) SetSendRate(perSec float64) {
	g.rateMu.Lock()
	g.rate = perSec
	g.rateMu.Unlock()
}

func (g *fakeGateway) sendRate() float64 {
	g.rateMu.Lock()
	defer g.rateMu.Unlock()
	return g.rate
}

// gateMemes blocks every fetch until open is closed.
type gateMemes struct {
	url     string
	open    chan struct{}
	waiting atomic.Int32
}

func (m *gateMemes) Fetch(ctx context.Context) (string, error) {
	m.waiting.Add(1)
	defer m.waiting.Add(-1)
	select {
	case <-m.open:
		return m.url, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// quietRand never enters a probabilistic branch.
type quietRand struct{}

func (quietRand) Float64() float64 { return 0.999 }
func (quietRand) Intn(int) int { return 0 }

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := defaults(t)
	s.StatusEnabled = false
	s.Welcome = true
	s.Location = time.UTC
	return s
}

// newTestApp wires the real engine, scheduler and command router around a
// fake gateway. Nothing is started except the supervisor.
func newTestApp(t *testing.T, s config.Settings, memes engagement.MemeSource) (*App, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	log := logx.Nop()
	bus := eventbus.New()
	logs, _ := logx.New(logx.Config{Level: "error"})
	t.Cleanup(func() { _ = logs.Close() })

	opts := mapEngagementOptions(s)
	opts.Rand = quietRand{}
	state := engagement.NewState(s.HistorySize)

	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})

	a := &App{
		sup:       sup,
		log:       log,
		logs:      logs,
		bus:       bus,
		gw:        gw,
		state:     state,
		engine:    engagement.New(state, gw, memes, nil, opts, log, bus),
		memes:     newMemeSource(mapMemeOptions(s)),
		completer: newCompleter(mapCompletionOptions(s)),
		sched:     broadcast.New(mapBroadcastConfig(s), gw, memes, broadcast.Options{Rand: quietRand{}}, log, bus),
		started:   time.Now(),
		inboxes:   newInboxes(dispatchers, inboxSize),
	}
	a.status = status.New(status.SourceFunc(a.stats), log)
	a.cmds = NewCommandRouter(CommandDeps{Send: gw, Memes: memes, Stats: a.stats}, s.CommandPrefix, s.Welcome, log)
	return a, gw
}

func chatMsg(user, channel, text string) transport.Message {
	return transport.Message{ID: "m-" + user, GuildID: "g1", ChannelID: channel, AuthorID: user, AuthorName: "Name" + user, Text: text}
}

// otherChannel finds a channel ID served by a different dispatcher than ch.
func otherChannel(a *App, ch string) string {
	for i := 0; ; i++ {
		id := fmt.Sprintf("c%d", i)
		if a.inboxFor(id) != a.inboxFor(ch) {
			return id
		}
	}
}

func TestEnqueueCountsEveryMessageWhileRespondersAreBusy(t *testing.T) {
	memes := &gateMemes{url: "https://i.example/cat.png", open: make(chan struct{})}
	a, gw := newTestApp(t, testSettings(t), memes)
	a.startDispatchers()
	ctx := context.Background()

	a.enqueue(ctx, chatMsg("u1", "c1", "cat"))
	require.Eventually(t, func() bool { return memes.waiting.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// c1's dispatcher is stuck in the fetch; far more than one inbox worth arrives.
	for i := 0; i < 400; i++ {
		a.enqueue(ctx, chatMsg("u1", "c1", fmt.Sprintf("hello %d", i)))
	}
	assert.Equal(t, 401, a.state.Activity("u1"))
	hist := a.state.History("u1")
	require.NotEmpty(t, hist)
	assert.Equal(t, "hello 399", hist[len(hist)-1])

	// Channels on other dispatchers are still answered.
	other := otherChannel(a, "c1")
	a.enqueue(ctx, chatMsg("u2", other, "!stats"))
	require.Eventually(t, func() bool {
		for _, p := range gw.sent() {
			if p.channelID == other && p.isEmbed {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	close(memes.open)
	require.Eventually(t, func() bool {
		for _, p := range gw.sent() {
			if p.channelID == "c1" && p.text == "🐱 https://i.example/cat.png" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandleMessageRunsEngineBeforeCommands(t *testing.T) {
	s := testSettings(t)
	s.Keywords = []string{"meme"}
	memes := &gateMemes{url: "https://i.example/cat.png", open: make(chan struct{})}
	close(memes.open)
	a, gw := newTestApp(t, s, memes)
	ctx := context.Background()

	m := chatMsg("u1", "c1", "!meme")
	a.handleMessage(ctx, inbound{msg: m, obs: a.engine.Observe(m)})

	assert.Equal(t, 1, a.state.Activity("u1"), "commands are counted too")
	posts := gw.sent()
	require.Len(t, posts, 2)
	assert.Equal(t, post{channelID: "c1", text: "🐱 https://i.example/cat.png"}, posts[0])
	assert.True(t, posts[1].isEmbed)
	assert.Equal(t, "https://i.example/cat.png", posts[1].embed.ImageURL)
}

func TestHandleMessageRecoversPanics(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t), &gateMemes{open: make(chan struct{})})
	a.cmds = nil

	assert.NotPanics(t, func() {
		a.handleMessage(context.Background(), inbound{msg: chatMsg("u1", "c1", "!stats")})
	})
}

func TestApplySettingsReachesEveryComponent(t *testing.T) {
	prev := testSettings(t)
	a, gw := newTestApp(t, prev, &gateMemes{open: make(chan struct{})})
	ctx := context.Background()

	next := prev
	next.ReplyProbability = 0.25
	next.ChannelCooldown = time.Minute
	next.MemeInterval = 5 * time.Minute
	next.DailyHour = 7
	next.MemeBaseURL = "https://memes.example"
	next.CompletionAPIKey = "sk-new"
	next.SendRatePerSec = 9
	next.CommandPrefix = "?"

	memeClient := a.memes.cur.Load()
	require.False(t, a.completer.Enabled())

	a.applySettings(ctx, prev, next)

	opts := a.engine.Options()
	assert.Equal(t, 0.25, opts.ReplyProbability)
	assert.Equal(t, time.Minute, opts.ChannelCooldown)
	assert.IsType(t, quietRand{}, opts.Rand, "reload keeps the injected rand")

	cfg := a.sched.Config()
	assert.Equal(t, 5*time.Minute, cfg.MemeInterval)
	assert.Equal(t, 7, cfg.DailyHour)

	assert.NotSame(t, memeClient, a.memes.cur.Load())
	assert.True(t, a.completer.Enabled())
	assert.Equal(t, 9.0, gw.sendRate())

	assert.False(t, a.cmds.Handle(ctx, chatMsg("u1", "c1", "!stats")))
	assert.True(t, a.cmds.Handle(ctx, chatMsg("u1", "c1", "?stats")))
}

func TestApplySettingsWithoutChangesIsANoop(t *testing.T) {
	s := testSettings(t)
	a, gw := newTestApp(t, s, &gateMemes{open: make(chan struct{})})

	a.applySettings(context.Background(), s, s)
	assert.Zero(t, gw.sendRate())
}

func TestWelcomeDoesNotBlockTheGateway(t *testing.T) {
	a, gw := newTestApp(t, testSettings(t), &gateMemes{open: make(chan struct{})})
	gw.hold = make(chan struct{})
	guild := transport.Community{ID: "g9", Name: "Cats", Channels: []transport.Channel{
		{ID: "c9", Name: "general", Kind: transport.ChannelText, CanView: true, CanSend: true},
	}}

	done := make(chan struct{})
	go func() {
		a.welcome(context.Background(), guild)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("welcome held the gateway goroutine")
	}
	assert.Empty(t, gw.sent())

	close(gw.hold)
	require.Eventually(t, func() bool { return len(gw.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := gw.sent()[0]
	assert.Equal(t, "c9", got.channelID)
	assert.Equal(t, welcomeTitle, got.embed.Title)
}

func TestStatsReportsScheduleAndRuntime(t *testing.T) {
	a, gw := newTestApp(t, testSettings(t), &gateMemes{open: make(chan struct{})})
	gw.communities = []transport.Community{{ID: "g1"}, {ID: "g2"}}
	a.startDispatchers()
	a.engine.Observe(chatMsg("u1", "c1", "hi"))

	require.Eventually(t, func() bool { return a.sup.Active() == dispatchers }, 2*time.Second, 5*time.Millisecond)
	st := a.stats()

	assert.Equal(t, 2, st.Servers)
	assert.Equal(t, 1, st.UsersTracked)
	assert.False(t, st.NextDaily.IsZero())
	assert.Equal(t, 20, st.NextDaily.Hour())
	require.Len(t, st.Jobs, 2)
	assert.Equal(t, broadcast.JobInterval, st.Jobs[0].Name)

	require.NotNil(t, st.Runtime)
	assert.Equal(t, int64(dispatchers), st.Runtime.Goroutines)
	assert.Len(t, st.Runtime.Tasks, dispatchers)
}

func TestStatsOmitsDailyWhenBroadcastsAreOff(t *testing.T) {
	s := testSettings(t)
	s.BroadcastEnabled = false
	a, _ := newTestApp(t, s, &gateMemes{open: make(chan struct{})})

	assert.True(t, a.stats().NextDaily.IsZero())
}
