package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Settings is the validated, defaulted view of Config that components consume.
type Settings struct {
	DiscordToken   string
	CommandPrefix  string
	SendRatePerSec int
	Welcome        bool

	ReplyProbability   float64
	AugmentProbability float64
	ChannelCooldown    time.Duration
	UserCooldown       time.Duration
	ActiveThreshold    int
	HistorySize        int
	Keywords           []string

	BroadcastEnabled bool
	MemeInterval     time.Duration
	DailyHour        int
	Location         *time.Location
	RunTimeout       time.Duration

	MemeBaseURL string
	MemeTimeout time.Duration
	MemeBuckets []string

	CompletionAPIKey      string
	CompletionBaseURL     string
	CompletionModel       string
	CompletionMaxTokens   int
	CompletionTemperature float64
	CompletionTimeout     time.Duration

	StatusEnabled bool
	StatusAddr    string
	StatusPprof   bool

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration
	StorageRetention   time.Duration

	Logging LoggingConfig
}

const (
	DefaultReplyProbability   = 0.9
	DefaultAugmentProbability = 0.4
	DefaultChannelCooldown    = 20 * time.Second
	DefaultUserCooldown       = 60 * time.Second
	DefaultActiveThreshold    = 10
	DefaultHistorySize        = 10
	DefaultMemeInterval       = 30 * time.Minute
	DefaultDailyHour          = 20
	DefaultRunTimeout         = 2 * time.Minute
	DefaultMemeBaseURL        = "https://meme-api.com"
	DefaultMemeTimeout        = 15 * time.Second
	DefaultCompletionBaseURL  = "https://api.openai.com/v1"
	DefaultCompletionModel    = "gpt-4o"
	DefaultCompletionTimeout  = 20 * time.Second
	DefaultStatusAddr         = ":8000"
	DefaultStorageRetention   = 7 * 24 * time.Hour
)

var ErrMissingToken = errors.New("discord token is not set (DISCORD_TOKEN or discord.token)")

// Resolve validates cfg and fills defaults. It does not require a Discord
// token; callers that connect must check Settings.DiscordToken themselves.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var (
		s   Settings
		err error
	)

	s.DiscordToken = strings.TrimSpace(cfg.Discord.Token)
	s.CommandPrefix = strings.TrimSpace(cfg.Discord.CommandPrefix)
	if s.CommandPrefix == "" {
		s.CommandPrefix = "!"
	}
	s.SendRatePerSec = cfg.Discord.SendRatePerSec
	if s.SendRatePerSec <= 0 {
		s.SendRatePerSec = 5
	}
	s.Welcome = boolOr(cfg.Discord.Welcome, true)

	e := cfg.Engagement
	if s.ReplyProbability, err = probability("engagement.reply_probability", e.ReplyProbability, DefaultReplyProbability); err != nil {
		return Settings{}, err
	}
	if s.AugmentProbability, err = probability("engagement.augment_probability", e.AugmentProbability, DefaultAugmentProbability); err != nil {
		return Settings{}, err
	}
	if s.ChannelCooldown, err = durationOr("engagement.channel_cooldown", e.ChannelCooldown, DefaultChannelCooldown); err != nil {
		return Settings{}, err
	}
	if s.UserCooldown, err = durationOr("engagement.user_cooldown", e.UserCooldown, DefaultUserCooldown); err != nil {
		return Settings{}, err
	}
	s.ActiveThreshold = intOr(e.ActiveThreshold, DefaultActiveThreshold)
	s.HistorySize = intOr(e.HistorySize, DefaultHistorySize)
	s.Keywords = trimmedLower(e.Keywords)

	b := cfg.Broadcast
	s.BroadcastEnabled = boolOr(b.Enabled, true)
	if s.MemeInterval, err = ParseDurationOrDefault("broadcast.meme_interval", b.MemeInterval, DefaultMemeInterval); err != nil {
		return Settings{}, err
	}
	s.DailyHour = DefaultDailyHour
	if b.DailyHour != nil {
		if *b.DailyHour < 0 || *b.DailyHour > 23 {
			return Settings{}, fmt.Errorf("broadcast.daily_hour: must be 0-23, got %d", *b.DailyHour)
		}
		s.DailyHour = *b.DailyHour
	}
	s.Location = time.Local
	if tz := strings.TrimSpace(b.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Settings{}, fmt.Errorf("broadcast.timezone: %w", err)
		}
		s.Location = loc
	}
	if s.RunTimeout, err = ParseDurationOrDefault("broadcast.run_timeout", b.RunTimeout, DefaultRunTimeout); err != nil {
		return Settings{}, err
	}

	s.MemeBaseURL = strOr(cfg.Meme.BaseURL, DefaultMemeBaseURL)
	if s.MemeTimeout, err = ParseDurationOrDefault("meme.timeout", cfg.Meme.Timeout, DefaultMemeTimeout); err != nil {
		return Settings{}, err
	}
	s.MemeBuckets = append([]string(nil), cfg.Meme.Buckets...)

	c := cfg.Completion
	s.CompletionAPIKey = strings.TrimSpace(c.APIKey)
	s.CompletionBaseURL = strOr(c.BaseURL, DefaultCompletionBaseURL)
	s.CompletionModel = strOr(c.Model, DefaultCompletionModel)
	s.CompletionMaxTokens = intOr(c.MaxTokens, 100)
	s.CompletionTemperature = 0.8
	if c.Temperature != nil {
		if *c.Temperature < 0 || *c.Temperature > 2 {
			return Settings{}, fmt.Errorf("completion.temperature: must be 0-2, got %v", *c.Temperature)
		}
		s.CompletionTemperature = *c.Temperature
	}
	if s.CompletionTimeout, err = ParseDurationOrDefault("completion.timeout", c.Timeout, DefaultCompletionTimeout); err != nil {
		return Settings{}, err
	}

	s.StatusEnabled = boolOr(cfg.Status.Enabled, true)
	s.StatusAddr = strOr(cfg.Status.Addr, DefaultStatusAddr)
	s.StatusPprof = cfg.Status.Pprof

	s.Logging = cfg.Logging
	if s.Logging.Discord.Enabled && strings.TrimSpace(s.Logging.Discord.ChannelID) == "" {
		return Settings{}, errors.New("logging.discord.channel_id: required when logging.discord.enabled")
	}

	if st := cfg.Storage; st != nil {
		s.StorageDriver = strings.ToLower(strings.TrimSpace(st.Driver))
		s.StoragePath = strings.TrimSpace(st.Path)
		if s.StorageBusyTimeout, err = ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return Settings{}, err
		}
		if s.StorageRetention, err = ParseDurationOrDefault("storage.retention", st.Retention, DefaultStorageRetention); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}

func probability(path string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 1 {
		return 0, fmt.Errorf("%s: must be within [0,1], got %v", path, *v)
	}
	return *v, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func strOr(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func trimmedLower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
