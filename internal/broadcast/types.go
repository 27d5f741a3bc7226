package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"purrbot/internal/engagement"
	"purrbot/internal/eventbus"
	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

const (
	JobInterval = "meme-interval"
	JobDaily    = "meme-daily"

	DefaultMemeInterval = 30 * time.Minute
	DefaultDailyHour    = 20
	DefaultRunTimeout   = 2 * time.Minute
	DefaultFirstRun     = 15 * time.Second

	embedColor  = 0xFF6B9D
	dailyTitle  = "🌙 Daily Cat Meme Time! 🐾"
	phraseShare = 0.5
)

// Config controls both jobs. Location nil means time.Local.
type Config struct {
	Enabled      bool
	MemeInterval time.Duration
	DailyHour    int
	Location     *time.Location
	RunTimeout   time.Duration
	// FirstRun is the delay between Start and the first interval firing.
	// Guilds stream in after the gateway is ready, so it is never zero.
	FirstRun time.Duration
}

func (c Config) normalized() Config {
	if c.MemeInterval <= 0 {
		c.MemeInterval = DefaultMemeInterval
	}
	if c.DailyHour < 0 || c.DailyHour > 23 {
		c.DailyHour = DefaultDailyHour
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.FirstRun <= 0 {
		c.FirstRun = DefaultFirstRun
	}
	return c
}

// scheduleChanged reports whether moving from c to n needs the jobs re-registered.
func (c Config) scheduleChanged(n Config) bool {
	return c.Enabled != n.Enabled ||
		c.MemeInterval != n.MemeInterval ||
		c.DailyHour != n.DailyHour ||
		c.Location.String() != n.Location.String()
}

// Gateway is what the jobs need from the chat platform.
type Gateway interface {
	transport.Sender
	transport.Directory
}

type Options struct {
	Tables engagement.Tables
	Rand   engagement.Rand
	Now    func() time.Time
}

// Scheduler owns the cron instance and both broadcast jobs.
type Scheduler struct {
	gw    Gateway
	memes engagement.MemeSource
	log   logx.Logger
	bus   eventbus.Bus

	tables engagement.Tables
	rand   engagement.Rand
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	entries map[string]cron.EntryID
	runCtx  context.Context
	stopRun context.CancelFunc
}

// JobInfo is one registered job in a Snapshot.
type JobInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string
	Jobs     []JobInfo
}

// Job returns the named job, if registered.
func (s Snapshot) Job(name string) (JobInfo, bool) {
	for _, j := range s.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobInfo{}, false
}

// Report summarises one firing.
type Report struct {
	Job       string
	Targets   int
	Delivered int
	Failed    int
	Took      time.Duration
}
