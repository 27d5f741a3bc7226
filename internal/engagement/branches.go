package engagement

import (
	"context"
	"errors"
	"strings"

	logx "purrbot/pkg/logx"
)

// recentForCompletion is how many history entries the completer sees.
const recentForCompletion = 5

var ErrEmptyReply = errors.New("empty completion")

// branch is one response strategy. Branches are evaluated in order; the
// first whose enter returns true owns the message and later ones never run.
// enter may consume randomness, so evaluation order is part of the contract.
type branch struct {
	name  string
	enter func(t *turn) bool
	run   func(ctx context.Context, t *turn) Outcome
}

func (e *Engine) defaultBranches() []branch {
	return []branch{
		{name: "keyword", enter: e.enterKeyword, run: e.runKeyword},
		{name: "augmented", enter: e.enterAugmented, run: e.runAugmented},
		{name: "ambient", enter: e.enterAmbient, run: e.runAmbient},
	}
}

func (e *Engine) enterKeyword(t *turn) bool {
	_, ok := t.opts.Tables.MatchKeyword(t.msg.Text)
	return ok
}

// runKeyword sends a meme link. A failed fetch ends the turn without a
// response; it does not fall through to the other branches.
func (e *Engine) runKeyword(ctx context.Context, t *turn) Outcome {
	if e.memes == nil {
		return Outcome{Kind: OutcomeKeywordMiss}
	}
	url, err := e.memes.Fetch(ctx)
	if err != nil || url == "" {
		return Outcome{Kind: OutcomeKeywordMiss, Err: err}
	}
	text := "🐱 " + url
	return Outcome{Kind: OutcomeMeme, Text: text, Err: e.send.SendText(ctx, t.msg.ChannelID, text)}
}

func (e *Engine) enterAugmented(t *turn) bool {
	if e.completer == nil || !e.completer.Enabled() {
		return false
	}
	return t.active || t.opts.Rand.Float64() < t.opts.AugmentProbability
}

func (e *Engine) runAugmented(ctx context.Context, t *turn) Outcome {
	name := t.msg.AuthorName
	recent := t.history
	if len(recent) > recentForCompletion {
		recent = recent[len(recent)-recentForCompletion:]
	}

	reply, err := e.completer.Complete(ctx, name, recent, t.msg.Text)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		e.log.Debug("completion unavailable; using personal fallback", logx.Err(err))
		text := personalize(pick(t.opts.Rand, t.opts.Tables.Personal), name)
		return Outcome{Kind: OutcomePersonal, Text: text, Err: e.send.SendText(ctx, t.msg.ChannelID, text)}
	}

	text := "@" + name + " " + reply
	return Outcome{Kind: OutcomeAugmented, Text: text, Err: e.send.SendText(ctx, t.msg.ChannelID, text)}
}

func (e *Engine) enterAmbient(t *turn) bool {
	return t.opts.Rand.Float64() < t.opts.ReplyProbability*0.5
}

// runAmbient reacts 30% of the time and otherwise posts a static phrase.
func (e *Engine) runAmbient(ctx context.Context, t *turn) Outcome {
	if t.opts.Rand.Float64() < 0.3 {
		emoji := pick(t.opts.Rand, t.opts.Tables.Reactions)
		return Outcome{Kind: OutcomeReaction, Emoji: emoji, Err: e.send.AddReaction(ctx, t.msg.ChannelID, t.msg.ID, emoji)}
	}
	text := pick(t.opts.Rand, t.opts.Tables.Phrases)
	return Outcome{Kind: OutcomePhrase, Text: text, Err: e.send.SendText(ctx, t.msg.ChannelID, text)}
}
