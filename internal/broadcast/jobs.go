package broadcast

import (
	"context"
	"errors"
	"time"

	"purrbot/internal/eventbus"
	"purrbot/internal/selector"
	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

// RunInterval performs one interval firing: per target, a static phrase half
// the time, otherwise a meme link with a phrase fallback.
func (s *Scheduler) RunInterval(ctx context.Context) Report {
	return s.run(ctx, JobInterval, s.deliverInterval)
}

// RunDaily performs one daily firing: per target, exactly one meme fetch and
// an embed on success. Fetch failure leaves that guild without a post.
func (s *Scheduler) RunDaily(ctx context.Context) Report {
	return s.run(ctx, JobDaily, s.deliverDaily)
}

var errEmptyMeme = errors.New("empty meme url")

const contentNone = "none"

type delivery struct {
	content string
	detail  string
	err     error
}

func (s *Scheduler) run(ctx context.Context, job string, deliver func(context.Context, selector.Target) delivery) Report {
	start := time.Now()
	targets := selector.Targets(s.gw.Communities())
	rep := Report{Job: job, Targets: len(targets)}
	log := s.log.With(logx.String("job", job))

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		d := deliver(ctx, t)
		ev := eventbus.Delivery{
			Job:       job,
			GuildID:   t.Community.ID,
			ChannelID: t.Channel.ID,
			Content:   d.content,
			Detail:    d.detail,
		}
		if d.err != nil {
			rep.Failed++
			ev.Err = d.err.Error()
			fields := []logx.Field{
				logx.String("guild", t.Community.Name),
				logx.String("channel", t.Channel.ID),
				logx.String("content", d.content),
				logx.Err(d.err),
			}
			if d.content == contentNone {
				// no meme, nothing was sent; the guild is skipped this run
				log.Debug("broadcast skipped", fields...)
			} else {
				log.Warn("broadcast delivery failed", fields...)
			}
		} else {
			rep.Delivered++
		}
		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicDelivery, Data: ev})
	}

	rep.Took = time.Since(start)
	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicRun, Data: eventbus.Run{
		Job:       job,
		Started:   start,
		Took:      rep.Took,
		Targets:   rep.Targets,
		Delivered: rep.Delivered,
		Failed:    rep.Failed,
	}})
	log.Info("broadcast run finished",
		logx.Int("targets", rep.Targets),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	)
	return rep
}

func (s *Scheduler) deliverInterval(ctx context.Context, t selector.Target) delivery {
	if s.rand.Float64() < phraseShare || s.memes == nil {
		return s.sendPhrase(ctx, t, "")
	}
	url, err := s.memes.Fetch(ctx)
	if err != nil || url == "" {
		s.log.Debug("meme unavailable; sending phrase", logx.String("guild", t.Community.ID), logx.Err(err))
		return s.sendPhrase(ctx, t, "meme fallback")
	}
	text := "🐾 " + url
	return delivery{content: "meme", detail: url, err: s.gw.SendText(ctx, t.Channel.ID, text)}
}

func (s *Scheduler) sendPhrase(ctx context.Context, t selector.Target, note string) delivery {
	text := s.tables.Phrase(s.rand)
	detail := text
	if note != "" {
		detail = note + ": " + text
	}
	return delivery{content: "phrase", detail: detail, err: s.gw.SendText(ctx, t.Channel.ID, text)}
}

func (s *Scheduler) deliverDaily(ctx context.Context, t selector.Target) delivery {
	if s.memes == nil {
		return delivery{content: contentNone}
	}
	url, err := s.memes.Fetch(ctx)
	if err == nil && url == "" {
		err = errEmptyMeme
	}
	if err != nil {
		return delivery{content: contentNone, err: err}
	}
	loc := s.Config().Location
	e := transport.Embed{
		Title:    dailyTitle,
		Color:    embedColor,
		ImageURL: url,
		Footer:   "Delivered at " + s.now().In(loc).Format("15:04"),
	}
	return delivery{content: "embed", detail: url, err: s.gw.SendEmbed(ctx, t.Channel.ID, e)}
}
