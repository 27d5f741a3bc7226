package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purrbot/internal/config"
	"purrbot/internal/engagement"
)

func defaults(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.Resolve(&config.Config{})
	require.NoError(t, err)
	return s
}

func TestMapEngagementOptions(t *testing.T) {
	s := defaults(t)
	o := mapEngagementOptions(s)
	assert.Equal(t, 0.9, o.ReplyProbability)
	assert.Equal(t, 0.4, o.AugmentProbability)
	assert.Equal(t, 20*time.Second, o.ChannelCooldown)
	assert.Equal(t, 60*time.Second, o.UserCooldown)
	assert.Equal(t, 10, o.ActiveThreshold)
	assert.Equal(t, engagement.DefaultTables().Keywords, o.Tables.Keywords)

	s.Keywords = []string{"floof"}
	o = mapEngagementOptions(s)
	assert.Equal(t, []string{"floof"}, o.Tables.Keywords)
	assert.NotEmpty(t, o.Tables.Phrases)
}

func TestMapBroadcastAndProviders(t *testing.T) {
	s := defaults(t)
	b := mapBroadcastConfig(s)
	assert.True(t, b.Enabled)
	assert.Equal(t, 30*time.Minute, b.MemeInterval)
	assert.Equal(t, 20, b.DailyHour)

	c := mapCompletionOptions(s)
	require.NotNil(t, c.Temperature)
	assert.Equal(t, 0.8, *c.Temperature)
	assert.Equal(t, "gpt-4o", c.Model)

	m := mapMemeOptions(s)
	assert.Equal(t, "https://meme-api.com", m.BaseURL)
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		driver  string
		path    string
		enabled bool
		wantErr string
	}{
		{name: "empty", driver: ""},
		{name: "none", driver: "none"},
		{name: "file default path", driver: "file", enabled: true},
		{name: "sqlite", driver: "SQLite", path: "./data/a.db", enabled: true},
		{name: "sqlite needs path", driver: "sqlite", wantErr: "storage.path is required"},
		{name: "unknown", driver: "redis", wantErr: "unknown storage.driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := defaults(t)
			s.StorageDriver, s.StoragePath = tc.driver, tc.path
			sc, enabled, err := mapStorageConfig(s)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			if enabled {
				assert.NotEmpty(t, sc.Path)
			}
		})
	}

	s := defaults(t)
	s.StorageDriver, s.StoragePath = "sqlite", "./x.db"
	sc, _, err := mapStorageConfig(s)
	require.NoError(t, err)
	assert.Equal(t, time.Second, sc.BusyTimeout)
}

func TestChangedSections(t *testing.T) {
	a := defaults(t)
	assert.Empty(t, changedSections(a, a))

	b := defaults(t)
	// Resolve loads a fresh Location each time; equal names are not a change.
	assert.Empty(t, changedSections(a, b))

	b.ReplyProbability = 0.5
	b.DailyHour = 7
	b.Logging.Level = "debug"
	b.StatusPprof = true
	assert.Equal(t, []string{"engagement", "broadcast", "status", "logging"}, changedSections(a, b))

	c := defaults(t)
	c.Keywords = []string{"meow"}
	c.StorageDriver = "file"
	assert.Equal(t, []string{"engagement", "storage"}, changedSections(a, c))
}
