package engagement

import (
	"context"
	"sync"
	"time"

	"purrbot/internal/eventbus"
	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

// MemeSource fetches one image URL.
type MemeSource interface {
	Fetch(ctx context.Context) (string, error)
}

// Completer produces a short themed reply from a user's recent messages.
// A disabled completer (no credentials) is never called.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, userName string, recent []string, text string) (string, error)
}

// Options are the tunable knobs. Zero values fall back to defaults in New.
type Options struct {
	ReplyProbability   float64
	AugmentProbability float64
	ChannelCooldown    time.Duration
	UserCooldown       time.Duration
	ActiveThreshold    int

	Tables Tables
	Rand   Rand
	Now    func() time.Time
}

type OutcomeKind string

const (
	OutcomeNone     OutcomeKind = "none"
	OutcomeCooldown OutcomeKind = "cooldown"
	OutcomeMeme     OutcomeKind = "meme"
	// OutcomeKeywordMiss: keyword matched but no meme was available.
	OutcomeKeywordMiss OutcomeKind = "keyword_miss"
	OutcomeAugmented   OutcomeKind = "augmented"
	OutcomePersonal    OutcomeKind = "personal_fallback"
	OutcomeReaction    OutcomeKind = "reaction"
	OutcomePhrase      OutcomeKind = "phrase"
)

// Outcome describes what Handle did with one message.
type Outcome struct {
	Kind   OutcomeKind
	Branch string
	// Text is the sent text; Emoji the added reaction.
	Text  string
	Emoji string
	// Count is the author's activity count after this message.
	Count  int
	Active bool
	// Err is a send or provider failure that was absorbed.
	Err error
}

// Responded reports whether an outbound action was attempted.
func (o Outcome) Responded() bool {
	switch o.Kind {
	case OutcomeMeme, OutcomeAugmented, OutcomePersonal, OutcomeReaction, OutcomePhrase:
		return true
	}
	return false
}

// Engine decides, per inbound message, whether and how to respond.
type Engine struct {
	state     *State
	send      transport.Sender
	memes     MemeSource
	completer Completer
	log       logx.Logger
	bus       eventbus.Bus

	mu       sync.RWMutex
	opts     Options
	branches []branch
}

func New(state *State, send transport.Sender, memes MemeSource, completer Completer, opts Options, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if state == nil {
		state = NewState(0)
	}
	e := &Engine{
		state:     state,
		send:      send,
		memes:     memes,
		completer: completer,
		log:       log,
		bus:       bus,
		opts:      withDefaults(opts),
	}
	e.branches = e.defaultBranches()
	return e
}

func withDefaults(o Options) Options {
	if o.ActiveThreshold <= 0 {
		o.ActiveThreshold = 10
	}
	o.Tables = o.Tables.withDefaults()
	if o.Rand == nil {
		o.Rand = NewRand(0)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Apply swaps the numeric knobs at runtime. Tables, Rand and Now are kept
// unless set in opts.
func (e *Engine) Apply(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(opts.Tables.Keywords) == 0 && len(opts.Tables.Phrases) == 0 &&
		len(opts.Tables.Personal) == 0 && len(opts.Tables.Reactions) == 0 {
		opts.Tables = e.opts.Tables
	}
	if opts.Rand == nil {
		opts.Rand = e.opts.Rand
	}
	if opts.Now == nil {
		opts.Now = e.opts.Now
	}
	e.opts = withDefaults(opts)
}

func (e *Engine) State() *State { return e.state }

func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// Observation is the author's activity state right after one message was
// counted.
type Observation struct {
	Count   int
	History []string
}

// Observe counts m against its author and records it in their history.
// Every non-bot message must pass through Observe exactly once, even when no
// response is attempted.
func (e *Engine) Observe(m transport.Message) Observation {
	if m.AuthorBot {
		return Observation{}
	}
	count, history := e.state.Observe(m.AuthorID, m.Text)
	return Observation{Count: count, History: history}
}

// Handle observes m and then runs the decision pipeline for it.
func (e *Engine) Handle(ctx context.Context, m transport.Message) Outcome {
	return e.Respond(ctx, m, e.Observe(m))
}

// Respond runs the decision pipeline for a message already counted by
// Observe. It never fails: provider and send errors degrade to a fallback
// and are reported on the returned Outcome.
func (e *Engine) Respond(ctx context.Context, m transport.Message, obs Observation) Outcome {
	if m.AuthorBot {
		return Outcome{Kind: OutcomeNone}
	}
	opts := e.Options()

	t := &turn{
		msg:     m,
		opts:    opts,
		count:   obs.Count,
		active:  obs.Count >= opts.ActiveThreshold,
		history: obs.History,
		now:     opts.Now(),
	}

	if e.state.CoolingDown(m.ChannelID, m.AuthorID, t.now, opts.ChannelCooldown, opts.UserCooldown) {
		return t.outcome(Outcome{Kind: OutcomeCooldown})
	}

	out := Outcome{Kind: OutcomeNone}
	for _, b := range e.branches {
		if !b.enter(t) {
			continue
		}
		out = b.run(ctx, t)
		out.Branch = b.name
		break
	}
	out = t.outcome(out)

	if out.Responded() {
		e.state.MarkResponded(m.ChannelID, m.AuthorID, t.now)
	}
	e.report(m, out)
	return out
}

func (e *Engine) report(m transport.Message, out Outcome) {
	if !out.Responded() && out.Err == nil {
		return
	}
	ev := eventbus.Engagement{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.AuthorID,
		Outcome:   string(out.Kind),
		Detail:    out.Text,
	}
	if out.Emoji != "" {
		ev.Detail = out.Emoji
	}
	fields := []logx.Field{
		logx.String("outcome", string(out.Kind)),
		logx.String("channel", m.ChannelID),
		logx.String("user", m.AuthorID),
		logx.Int("count", out.Count),
	}
	if out.Err != nil {
		ev.Err = out.Err.Error()
		e.log.Warn("engagement degraded", append(fields, logx.Err(out.Err))...)
	} else {
		e.log.Debug("engagement", fields...)
	}
	e.bus.Publish(eventbus.Event{Topic: eventbus.TopicEngagement, Data: ev})
}

// turn is the per-message working set shared by the branches.
type turn struct {
	msg     transport.Message
	opts    Options
	count   int
	active  bool
	history []string
	now     time.Time
}

func (t *turn) outcome(o Outcome) Outcome {
	o.Count = t.count
	o.Active = t.active
	return o
}
