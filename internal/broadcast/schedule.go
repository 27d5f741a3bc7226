package broadcast

import (
	"time"

	"github.com/robfig/cron/v3"
)

const day = 24 * time.Hour

// FirstDailyRun returns the first firing for a job anchored at hour:00 in
// now's location. The result is strictly after now: an anchor that equals
// or precedes now rolls to the next day.
func FirstDailyRun(now time.Time, hour int) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(y, m, d+1, hour, 0, 0, 0, now.Location())
	}
	return at
}

// dailyAnchor fires at first and then every 24h after it. It is
// free-running: firings are first+n*24h and do not re-align to the wall
// clock across DST changes.
type dailyAnchor struct {
	first time.Time
}

func newDailyAnchor(now time.Time, hour int) *dailyAnchor {
	return &dailyAnchor{first: FirstDailyRun(now, hour)}
}

func (d *dailyAnchor) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	n := t.Sub(d.first)/day + 1
	return d.first.Add(n * day)
}

// kickoff fires once at first and then behaves like cron.Every. cron calls
// Next from its run goroutine only.
type kickoff struct {
	first time.Time
	every cron.ConstantDelaySchedule
	fired bool
}

func newKickoff(first time.Time, every time.Duration) *kickoff {
	return &kickoff{first: first, every: cron.Every(every)}
}

func (k *kickoff) Next(t time.Time) time.Time {
	if !k.fired {
		k.fired = true
		if k.first.After(t) {
			return k.first
		}
		return t
	}
	return k.every.Next(t)
}

var (
	_ cron.Schedule = (*dailyAnchor)(nil)
	_ cron.Schedule = (*kickoff)(nil)
)
