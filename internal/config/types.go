package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("20s", "30m"). Zero values mean "use the default" (see Resolve).
//
// Secrets (discord token, completion API key) are normally supplied through
// the environment or a .env file rather than the config file.
type Config struct {
	Discord    DiscordConfig    `json:"discord"`
	Engagement EngagementConfig `json:"engagement"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Meme       MemeConfig       `json:"meme"`
	Completion CompletionConfig `json:"completion"`
	Logging    LoggingConfig    `json:"logging"`
	Status     StatusConfig     `json:"status"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
}

type DiscordConfig struct {
	Token         string `json:"token,omitempty"`
	CommandPrefix string `json:"command_prefix,omitempty"` // default "!"
	// SendRatePerSec bounds outbound REST calls (sends + reactions).
	SendRatePerSec int  `json:"send_rate_per_sec,omitempty"`
	Welcome        *bool `json:"welcome,omitempty"` // default true
}

// EngagementConfig drives the per-message response engine.
//
// Probabilities are in [0,1]. Pointers distinguish "omitted" from an explicit 0.
type EngagementConfig struct {
	ReplyProbability   *float64 `json:"reply_probability,omitempty"`   // default 0.9
	AugmentProbability *float64 `json:"augment_probability,omitempty"` // default 0.4
	ChannelCooldown    string   `json:"channel_cooldown,omitempty"`    // default "20s"
	UserCooldown       string   `json:"user_cooldown,omitempty"`       // default "60s"
	ActiveThreshold    int      `json:"active_threshold,omitempty"`    // default 10
	HistorySize        int      `json:"history_size,omitempty"`        // default 10
	Keywords           []string `json:"keywords,omitempty"`
}

type BroadcastConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`       // default true
	MemeInterval string `json:"meme_interval,omitempty"` // default "30m"
	DailyHour    *int   `json:"daily_hour,omitempty"`    // default 20 (0-23)
	Timezone     string `json:"timezone,omitempty"`      // IANA; default local
	RunTimeout   string `json:"run_timeout,omitempty"`   // default "2m"
}

type MemeConfig struct {
	BaseURL string   `json:"base_url,omitempty"` // default "https://meme-api.com"
	Timeout string   `json:"timeout,omitempty"`  // default "15s"
	Buckets []string `json:"buckets,omitempty"`
}

type CompletionConfig struct {
	APIKey      string   `json:"api_key,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"` // default "https://api.openai.com/v1"
	Model       string   `json:"model,omitempty"`    // default "gpt-4o"
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Timeout     string   `json:"timeout,omitempty"` // default "20s"
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StatusConfig controls the keep-alive HTTP endpoint.
type StatusConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // default true
	Addr    string `json:"addr,omitempty"`    // default ":8000"
	// Pprof mounts net/http/pprof under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig controls the optional audit trail of outbound actions.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/purrbot.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Retention   string `json:"retention,omitempty"`
}
