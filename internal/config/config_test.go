package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	s, err := Resolve(nil)
	require.NoError(t, err)

	assert.Equal(t, "!", s.CommandPrefix)
	assert.Equal(t, 5, s.SendRatePerSec)
	assert.True(t, s.Welcome)
	assert.InDelta(t, 0.9, s.ReplyProbability, 1e-9)
	assert.InDelta(t, 0.4, s.AugmentProbability, 1e-9)
	assert.Equal(t, 20*time.Second, s.ChannelCooldown)
	assert.Equal(t, 60*time.Second, s.UserCooldown)
	assert.Equal(t, 10, s.ActiveThreshold)
	assert.Equal(t, 10, s.HistorySize)
	assert.True(t, s.BroadcastEnabled)
	assert.Equal(t, 30*time.Minute, s.MemeInterval)
	assert.Equal(t, 20, s.DailyHour)
	assert.Equal(t, time.Local, s.Location)
	assert.Equal(t, 2*time.Minute, s.RunTimeout)
	assert.Equal(t, DefaultMemeBaseURL, s.MemeBaseURL)
	assert.Equal(t, 15*time.Second, s.MemeTimeout)
	assert.Equal(t, "gpt-4o", s.CompletionModel)
	assert.Equal(t, 100, s.CompletionMaxTokens)
	assert.InDelta(t, 0.8, s.CompletionTemperature, 1e-9)
	assert.Equal(t, 20*time.Second, s.CompletionTimeout)
	assert.True(t, s.StatusEnabled)
	assert.Equal(t, ":8000", s.StatusAddr)
	assert.Empty(t, s.StorageDriver)
	assert.Empty(t, s.DiscordToken)
}

func TestResolveRejectsInvalid(t *testing.T) {
	t.Parallel()
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	tests := []struct {
		name string
		cfg  Config
	}{
		{"reply probability above 1", Config{Engagement: EngagementConfig{ReplyProbability: f(1.5)}}},
		{"augment probability negative", Config{Engagement: EngagementConfig{AugmentProbability: f(-0.1)}}},
		{"bad cooldown", Config{Engagement: EngagementConfig{ChannelCooldown: "soon"}}},
		{"hour out of range", Config{Broadcast: BroadcastConfig{DailyHour: i(24)}}},
		{"negative hour", Config{Broadcast: BroadcastConfig{DailyHour: i(-1)}}},
		{"unknown timezone", Config{Broadcast: BroadcastConfig{Timezone: "Mars/Olympus"}}},
		{"negative interval", Config{Broadcast: BroadcastConfig{MemeInterval: "-5m"}}},
		{"temperature", Config{Completion: CompletionConfig{Temperature: f(3)}}},
		{"discord log sink without channel", Config{Logging: LoggingConfig{Discord: LoggingDiscord{Enabled: true}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(&tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolveKeepsExplicitZero(t *testing.T) {
	t.Parallel()
	zero := 0.0
	hour := 0
	s, err := Resolve(&Config{
		Engagement: EngagementConfig{ReplyProbability: &zero, ChannelCooldown: "0s", Keywords: []string{" MEOW ", "", "Purr"}},
		Broadcast:  BroadcastConfig{DailyHour: &hour, Timezone: "UTC"},
	})
	require.NoError(t, err)
	assert.Zero(t, s.ReplyProbability)
	assert.Zero(t, s.ChannelCooldown)
	assert.Zero(t, s.DailyHour)
	assert.Equal(t, "UTC", s.Location.String())
	assert.Equal(t, []string{"meow", "purr"}, s.Keywords)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	var cfg Config
	require.NoError(t, ApplyEnv(&cfg, envMap(map[string]string{
		"BOT_TOKEN":         "fallback",
		"DISCORD_TOKEN":     " primary ",
		"OPENAI_API_KEY":    "sk-x",
		"REPLY_PROBABILITY": "0.25",
		"CHANNEL_COOLDOWN":  "5",
		"USER_COOLDOWN":     "0",
		"DAILY_HOUR":        "7",
		"MEME_INTERVAL":     "45",
		"PORT":              "9090",
	})))

	s, err := Resolve(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "primary", s.DiscordToken)
	assert.Equal(t, "sk-x", s.CompletionAPIKey)
	assert.InDelta(t, 0.25, s.ReplyProbability, 1e-9)
	assert.Equal(t, 5*time.Second, s.ChannelCooldown)
	assert.Zero(t, s.UserCooldown)
	assert.Equal(t, 7, s.DailyHour)
	assert.Equal(t, 45*time.Minute, s.MemeInterval)
	assert.Equal(t, ":9090", s.StatusAddr)
}

func TestApplyEnvBotTokenFallback(t *testing.T) {
	t.Parallel()
	var cfg Config
	require.NoError(t, ApplyEnv(&cfg, envMap(map[string]string{"BOT_TOKEN": "b"})))
	assert.Equal(t, "b", cfg.Discord.Token)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, kv := range [][2]string{
		{"REPLY_PROBABILITY", "lots"},
		{"CHANNEL_COOLDOWN", "-1"},
		{"USER_COOLDOWN", "1m"},
		{"DAILY_HOUR", "eight"},
		{"MEME_INTERVAL", "0"},
		{"PORT", "http"},
	} {
		var cfg Config
		err := ApplyEnv(&cfg, envMap(map[string]string{kv[0]: kv[1]}))
		assert.Error(t, err, kv[0])
	}
}

func TestManagerLoadFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		file string
		body string
	}{
		{"purrbot.json", `{"engagement":{"reply_probability":0.5,"user_cooldown":"2m"},"broadcast":{"daily_hour":6}}`},
		{"purrbot.yaml", "engagement:\n  reply_probability: 0.5\n  user_cooldown: 2m\nbroadcast:\n  daily_hour: 6\n"},
		{"purrbot.toml", "[engagement]\nreply_probability = 0.5\nuser_cooldown = \"2m\"\n\n[broadcast]\ndaily_hour = 6\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.file, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, tt.file, tt.body), envMap(nil))
			s, err := m.Load()
			require.NoError(t, err)
			assert.InDelta(t, 0.5, s.ReplyProbability, 1e-9)
			assert.Equal(t, 2*time.Minute, s.UserCooldown)
			assert.Equal(t, 6, s.DailyHour)
			require.NotNil(t, m.Config())
		})
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	for _, tt := range []struct{ file, body string }{
		{"a.json", `{"engagement":{"reply_chance":0.5}}`},
		{"a.yaml", "engagment:\n  reply_probability: 0.5\n"},
		{"b.json", `{} {}`},
	} {
		_, err := NewManager(writeFile(t, tt.file, tt.body), envMap(nil)).Load()
		assert.Error(t, err, tt.file)
	}
}

func TestManagerEnvOverridesFile(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"discord":{"token":"from-file"},"broadcast":{"daily_hour":6}}`)
	m := NewManager(p, envMap(map[string]string{"DISCORD_TOKEN": "from-env", "DAILY_HOUR": "9"}))
	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.DiscordToken)
	assert.Equal(t, 9, s.DailyHour)
}

func TestManagerReloadPublishesLatest(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "r.json", `{"broadcast":{"daily_hour":1}}`)
	m := NewManager(p, envMap(nil))
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "same content is not republished")

	require.NoError(t, os.WriteFile(p, []byte(`{"broadcast":{"daily_hour":2}}`), 0o600))
	changed, err = m.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, os.WriteFile(p, []byte(`{"broadcast":{"daily_hour":3}}`), 0o600))
	_, err = m.Reload()
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, 3, got.DailyHour, "slow subscriber sees the newest settings")
	assert.Equal(t, 3, m.Settings().DailyHour)

	require.NoError(t, os.WriteFile(p, []byte(`{"broadcast":{"daily_hour":99}}`), 0o600))
	_, err = m.Reload()
	assert.Error(t, err)
	assert.Equal(t, 3, m.Settings().DailyHour, "invalid reload keeps the last good settings")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	p := writeFile(t, ".env", "PURRBOT_TEST_ONLY=from-dotenv\n")
	t.Setenv("PURRBOT_TEST_ONLY", "")
	require.NoError(t, os.Unsetenv("PURRBOT_TEST_ONLY"))
	require.NoError(t, LoadEnvFile(p))
	assert.Equal(t, "from-dotenv", os.Getenv("PURRBOT_TEST_ONLY"))
}

func TestEmptyPathIsEnvOnly(t *testing.T) {
	t.Parallel()
	m := NewManager("", envMap(map[string]string{"MEME_INTERVAL": "5"}))
	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.MemeInterval)
	assert.Equal(t, "", m.Path())
}
