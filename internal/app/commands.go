package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"purrbot/internal/engagement"
	"purrbot/internal/selector"
	"purrbot/internal/status"
	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

const (
	embedColor = 0xFF6B9D

	memeFooter   = "🐾 Fresh cat meme, just for you!"
	memeApology  = "😿 Couldn't fetch a meme right now. Try again in a moment!"
	statsTitle   = "📊 Meowster Bot Stats"
	welcomeTitle = "🐾 Meow! Thanks for adding me!"
	welcomeDesc  = "I'm your friendly cat-themed bot! Here's what I can do:"
)

// CommandDeps are the read-only views commands answer from.
type CommandDeps struct {
	Send  transport.Sender
	Memes engagement.MemeSource
	// Stats reports the same numbers as the status endpoint.
	Stats func() status.Stats
}

type commandFunc func(ctx context.Context, m transport.Message) error

// CommandRouter answers the small prefix command surface (meme, stats) and
// greets newly joined guilds.
type CommandRouter struct {
	deps CommandDeps
	log  logx.Logger

	mu       sync.RWMutex
	prefix   string
	welcome  bool
	commands map[string]commandFunc
}

func NewCommandRouter(deps CommandDeps, prefix string, welcome bool, log logx.Logger) *CommandRouter {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &CommandRouter{deps: deps, log: log}
	r.SetPrefix(prefix)
	r.SetWelcome(welcome)
	r.commands = map[string]commandFunc{
		"meme":  r.cmdMeme,
		"stats": r.cmdStats,
	}
	return r
}

func (r *CommandRouter) SetPrefix(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "!"
	}
	r.mu.Lock()
	r.prefix = prefix
	r.mu.Unlock()
}

func (r *CommandRouter) SetWelcome(enabled bool) {
	r.mu.Lock()
	r.welcome = enabled
	r.mu.Unlock()
}

// parse returns the lower-cased command name, or "" when m is not a command.
func (r *CommandRouter) parse(text string) string {
	r.mu.RLock()
	prefix := r.prefix
	r.mu.RUnlock()

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// Handle runs the matching command and reports whether m was one. Unknown
// names are ignored.
func (r *CommandRouter) Handle(ctx context.Context, m transport.Message) bool {
	name := r.parse(m.Text)
	if name == "" {
		return false
	}
	fn, ok := r.commands[name]
	if !ok {
		return false
	}
	start := time.Now()
	err := fn(ctx, m)
	fields := []logx.Field{
		logx.String("cmd", name),
		logx.String("user", m.AuthorID),
		logx.String("channel", m.ChannelID),
		logx.Duration("took", time.Since(start)),
	}
	if err != nil {
		r.log.Warn("command failed", append(fields, logx.Err(err))...)
	} else {
		r.log.Debug("command handled", fields...)
	}
	return true
}

func (r *CommandRouter) cmdMeme(ctx context.Context, m transport.Message) error {
	url, err := r.deps.Memes.Fetch(ctx)
	if err != nil {
		if sendErr := r.deps.Send.SendText(ctx, m.ChannelID, memeApology); sendErr != nil {
			return fmt.Errorf("meme apology: %w", sendErr)
		}
		r.log.Debug("meme command without meme", logx.Err(err))
		return nil
	}
	return r.deps.Send.SendEmbed(ctx, m.ChannelID, transport.Embed{
		Color:    embedColor,
		ImageURL: url,
		Footer:   memeFooter,
	})
}

func (r *CommandRouter) cmdStats(ctx context.Context, m transport.Message) error {
	st := r.deps.Stats()
	daily := "off"
	if !st.NextDaily.IsZero() {
		daily = st.NextDaily.Format("15:04")
	}
	return r.deps.Send.SendEmbed(ctx, m.ChannelID, transport.Embed{
		Title: statsTitle,
		Color: embedColor,
		Fields: []transport.EmbedField{
			{Name: "🏠 Servers", Value: strconv.Itoa(st.Servers), Inline: true},
			{Name: "👥 Users Tracked", Value: strconv.Itoa(st.UsersTracked), Inline: true},
			{Name: "⭐ Active Users", Value: strconv.Itoa(st.ActiveUsers), Inline: true},
			{Name: "⏰ Uptime", Value: formatUptime(time.Duration(st.Uptime * float64(time.Second))), Inline: true},
			{Name: "📅 Next Daily Meme", Value: daily, Inline: true},
		},
	})
}

// Welcome greets a newly joined guild in its selected channel. A guild with
// no writable text channel is skipped silently.
func (r *CommandRouter) Welcome(ctx context.Context, c transport.Community) error {
	r.mu.RLock()
	enabled := r.welcome
	r.mu.RUnlock()
	if !enabled {
		return nil
	}
	ch, ok := selector.Select(c)
	if !ok {
		r.log.Debug("no welcome channel", logx.String("guild_id", c.ID))
		return nil
	}
	if err := r.deps.Send.SendEmbed(ctx, ch.ID, welcomeEmbed()); err != nil {
		return fmt.Errorf("welcome %s: %w", c.Name, err)
	}
	r.log.Info("welcome sent", logx.String("guild_id", c.ID), logx.String("channel", ch.Name))
	return nil
}

func welcomeEmbed() transport.Embed {
	return transport.Embed{
		Title:       welcomeTitle,
		Description: welcomeDesc,
		Color:       embedColor,
		Fields: []transport.EmbedField{
			{
				Name:  "🎭 Automatic Features",
				Value: "• Cat memes every 30 minutes\n• Daily meme delivery\n• Random cat reactions\n• Activity-based responses",
			},
			{
				Name:  "💬 Commands",
				Value: "• `!meme` - Get instant cat meme\n• `!stats` - Bot statistics",
			},
			{
				Name:  "💡 Tips",
				Value: "• Mention cats, meows, or purrs for instant memes!\n• Active chatters get personalized responses\n• Bot responds naturally to conversations",
			},
		},
	}
}

// formatUptime renders d as "H:MM:SS", prefixed with "N day(s), " past 24h.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	switch {
	case days == 1:
		return "1 day, " + hms
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
	return hms
}
