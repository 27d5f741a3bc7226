// Package discord adapts a discordgo session to transport.Gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

const (
	DefaultSendRate  = 5.0
	DefaultSendBurst = 5

	intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent | discordgo.IntentsGuilds
)

type Config struct {
	Token          string
	SendRatePerSec float64
	SendBurst      int
}

type Adapter struct {
	log     logx.Logger
	session *discordgo.Session
	limiter *rate.Limiter

	mu        sync.RWMutex
	ctx       context.Context
	running   bool
	onMessage []transport.MessageHandler
	onJoin    []transport.JoinHandler
	removers  []func()
	// known holds guild IDs that were present at login or already announced,
	// so only genuinely new guilds reach the join handlers.
	known map[string]struct{}
}

var _ transport.Gateway = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	token = strings.TrimPrefix(token, "Bot ")
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = intents
	// Handlers run on the gateway goroutine, one event at a time.
	s.SyncEvents = true
	s.StateEnabled = true

	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = DefaultSendRate
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = DefaultSendBurst
	}
	return &Adapter{
		log:     log,
		session: s,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		ctx:     context.Background(),
		known:   map[string]struct{}{},
	}, nil
}

func (a *Adapter) OnMessage(h transport.MessageHandler) {
	if h == nil {
		return
	}
	a.mu.Lock()
	a.onMessage = append(a.onMessage, h)
	a.mu.Unlock()
}

func (a *Adapter) OnJoin(h transport.JoinHandler) {
	if h == nil {
		return
	}
	a.mu.Lock()
	a.onJoin = append(a.onJoin, h)
	a.mu.Unlock()
}

// Start opens the gateway websocket. Handler contexts derive from ctx.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.ctx = ctx
	a.removers = []func(){
		a.session.AddHandler(a.handleReady),
		a.session.AddHandler(a.handleMessageCreate),
		a.session.AddHandler(a.handleGuildCreate),
		a.session.AddHandler(a.handleGuildDelete),
	}
	a.running = true
	a.mu.Unlock()

	if err := a.session.Open(); err != nil {
		a.mu.Lock()
		a.running = false
		a.dropHandlersLocked()
		a.mu.Unlock()
		return fmt.Errorf("discord open: %w", err)
	}
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.dropHandlersLocked()
	a.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- a.session.Close() }()
	select {
	case err := <-done:
		a.log.Info("gateway closed")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) dropHandlersLocked() {
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
}

func (a *Adapter) handlerCtx() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	for _, g := range r.Guilds {
		a.known[g.ID] = struct{}{}
	}
	a.mu.Unlock()

	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	a.log.Info("logged in", logx.String("user", name), logx.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	msg := toMessage(m.Message)
	if msg.AuthorBot {
		return
	}

	a.mu.RLock()
	hs := append([]transport.MessageHandler(nil), a.onMessage...)
	a.mu.RUnlock()
	ctx := a.handlerCtx()
	for _, h := range hs {
		h(ctx, msg)
	}
}

func (a *Adapter) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g == nil || g.Guild == nil || g.Unavailable {
		return
	}
	a.mu.Lock()
	_, seen := a.known[g.ID]
	a.known[g.ID] = struct{}{}
	hs := append([]transport.JoinHandler(nil), a.onJoin...)
	a.mu.Unlock()
	if seen {
		return
	}

	c, ok := a.community(g.ID)
	if !ok {
		return
	}
	a.log.Info("joined guild", logx.String("guild", c.Name), logx.String("guild_id", c.ID))
	ctx := a.handlerCtx()
	for _, h := range hs {
		h(ctx, c)
	}
}

func (a *Adapter) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g == nil || g.Guild == nil || g.Unavailable {
		return
	}
	a.mu.Lock()
	delete(a.known, g.ID)
	a.mu.Unlock()
	a.log.Info("left guild", logx.String("guild_id", g.ID))
}

// Communities snapshots every available guild in the session state.
func (a *Adapter) Communities() []transport.Community {
	st := a.session.State
	if st == nil {
		return nil
	}
	st.RLock()
	copies := make([]guildCopy, 0, len(st.Guilds))
	for _, g := range st.Guilds {
		if g == nil || g.Unavailable {
			continue
		}
		copies = append(copies, copyGuild(g))
	}
	st.RUnlock()

	perms := a.permsFunc()
	out := make([]transport.Community, 0, len(copies))
	for _, gc := range copies {
		out = append(out, gc.community(perms))
	}
	return out
}

func (a *Adapter) community(guildID string) (transport.Community, bool) {
	st := a.session.State
	if st == nil {
		return transport.Community{}, false
	}
	g, err := st.Guild(guildID)
	if err != nil {
		return transport.Community{}, false
	}
	st.RLock()
	gc := copyGuild(g)
	st.RUnlock()
	return gc.community(a.permsFunc()), true
}

func (a *Adapter) permsFunc() func(string) int64 {
	st := a.session.State
	if st == nil || st.User == nil {
		return nil
	}
	botID := st.User.ID
	return func(channelID string) int64 {
		p, err := st.UserChannelPermissions(botID, channelID)
		if err != nil {
			return 0
		}
		return p
	}
}

func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) SendEmbed(ctx context.Context, channelID string, e transport.Embed) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.session.ChannelMessageSendEmbed(channelID, toEmbed(e), discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

// SetSendRate adjusts the outbound limiter at runtime.
func (a *Adapter) SetSendRate(perSec float64) {
	if perSec <= 0 {
		perSec = DefaultSendRate
	}
	a.limiter.SetLimit(rate.Limit(perSec))
}
