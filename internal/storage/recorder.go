package storage

import (
	"context"
	"fmt"
	"time"

	"purrbot/internal/eventbus"
	logx "purrbot/pkg/logx"
)

const (
	recorderBuffer = 256
	pruneEvery     = time.Hour
	writeTimeout   = 5 * time.Second
)

// Recorder copies engagement and broadcast events from the bus into a Store
// and prunes entries older than the retention window.
type Recorder struct {
	store     Store
	bus       eventbus.Bus
	log       logx.Logger
	retention time.Duration
	now       func() time.Time
}

func NewRecorder(store Store, bus eventbus.Bus, retention time.Duration, log logx.Logger) *Recorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log, retention: retention, now: time.Now}
}

// Run consumes events until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if r.store == nil || r.bus == nil {
		return ErrDisabled
	}
	ch, unsub := r.bus.Subscribe(recorderBuffer, eventbus.TopicEngagement, eventbus.TopicDelivery, eventbus.TopicRun)
	defer unsub()

	r.prune(ctx)
	t := time.NewTicker(pruneEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.prune(ctx)
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e, ok := Entry(ev)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := r.store.AppendAudit(wctx, e); err != nil {
				r.log.Warn("audit append failed", logx.String("kind", e.Kind), logx.Err(err))
			}
			cancel()
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.store.Prune(ctx, r.now().Add(-r.retention))
	if err != nil {
		r.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		r.log.Info("audit pruned", logx.Int64("removed", n), logx.Duration("retention", r.retention))
	}
}

// Entry maps a bus event onto an audit row. Unknown payloads are skipped.
func Entry(ev eventbus.Event) (AuditEntry, bool) {
	e := AuditEntry{At: ev.Time, Kind: ev.Topic}
	switch d := ev.Data.(type) {
	case eventbus.Engagement:
		e.GuildID, e.ChannelID, e.UserID = d.GuildID, d.ChannelID, d.UserID
		e.Outcome, e.Detail, e.Error = d.Outcome, d.Detail, d.Err
	case eventbus.Delivery:
		e.GuildID, e.ChannelID = d.GuildID, d.ChannelID
		e.Outcome, e.Detail, e.Error = d.Job+":"+d.Content, d.Detail, d.Err
	case eventbus.Run:
		e.Outcome = d.Job
		e.Detail = fmt.Sprintf("targets=%d delivered=%d failed=%d took=%s", d.Targets, d.Delivered, d.Failed, d.Took.Round(time.Millisecond))
	default:
		return AuditEntry{}, false
	}
	return e, true
}
