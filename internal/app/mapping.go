package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"purrbot/internal/broadcast"
	"purrbot/internal/config"
	"purrbot/internal/engagement"
	"purrbot/internal/providers/completion"
	"purrbot/internal/providers/meme"
	"purrbot/internal/status"
	"purrbot/internal/storage"
	logx "purrbot/pkg/logx"
)

func mapEngagementOptions(s config.Settings) engagement.Options {
	tables := engagement.DefaultTables()
	if len(s.Keywords) > 0 {
		tables.Keywords = append([]string(nil), s.Keywords...)
	}
	return engagement.Options{
		ReplyProbability:   s.ReplyProbability,
		AugmentProbability: s.AugmentProbability,
		ChannelCooldown:    s.ChannelCooldown,
		UserCooldown:       s.UserCooldown,
		ActiveThreshold:    s.ActiveThreshold,
		Tables:             tables,
	}
}

func mapBroadcastConfig(s config.Settings) broadcast.Config {
	return broadcast.Config{
		Enabled:      s.BroadcastEnabled,
		MemeInterval: s.MemeInterval,
		DailyHour:    s.DailyHour,
		Location:     s.Location,
		RunTimeout:   s.RunTimeout,
	}
}

func mapMemeOptions(s config.Settings) meme.Options {
	return meme.Options{
		BaseURL: s.MemeBaseURL,
		Buckets: append([]string(nil), s.MemeBuckets...),
		Timeout: s.MemeTimeout,
	}
}

func mapCompletionOptions(s config.Settings) completion.Options {
	temp := s.CompletionTemperature
	return completion.Options{
		APIKey:      s.CompletionAPIKey,
		BaseURL:     s.CompletionBaseURL,
		Model:       s.CompletionModel,
		MaxTokens:   s.CompletionMaxTokens,
		Temperature: &temp,
		Timeout:     s.CompletionTimeout,
	}
}

func mapStatusConfig(s config.Settings) status.Config {
	return status.Config{Enabled: s.StatusEnabled, Addr: s.StatusAddr, Pprof: s.StatusPprof}
}

func mapLogConfig(s config.Settings) logx.Config {
	l := s.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  l.Discord.ChannelID,
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

// mapStorageConfig reports enabled=false for a missing, empty or "none" driver.
func mapStorageConfig(s config.Settings) (storage.Config, bool, error) {
	driver := strings.ToLower(strings.TrimSpace(s.StorageDriver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(s.StoragePath)

	switch driver {
	case "file":
		if path == "" {
			path = "./data/purrbot"
		}
		return storage.Config{Driver: "file", Path: path, Retention: s.StorageRetention}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy := s.StorageBusyTimeout
		if busy <= 0 {
			busy = time.Second
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retention: s.StorageRetention}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", s.StorageDriver)
	}
}

// changedSections names the config sections that differ between a and b.
func changedSections(a, b config.Settings) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("discord", a.DiscordToken != b.DiscordToken || a.CommandPrefix != b.CommandPrefix ||
		a.SendRatePerSec != b.SendRatePerSec || a.Welcome != b.Welcome)
	add("engagement", a.ReplyProbability != b.ReplyProbability || a.AugmentProbability != b.AugmentProbability ||
		a.ChannelCooldown != b.ChannelCooldown || a.UserCooldown != b.UserCooldown ||
		a.ActiveThreshold != b.ActiveThreshold || a.HistorySize != b.HistorySize ||
		!slices.Equal(a.Keywords, b.Keywords))
	add("broadcast", a.BroadcastEnabled != b.BroadcastEnabled || a.MemeInterval != b.MemeInterval ||
		a.DailyHour != b.DailyHour || locName(a.Location) != locName(b.Location) || a.RunTimeout != b.RunTimeout)
	add("meme", a.MemeBaseURL != b.MemeBaseURL || a.MemeTimeout != b.MemeTimeout || !slices.Equal(a.MemeBuckets, b.MemeBuckets))
	add("completion", a.CompletionAPIKey != b.CompletionAPIKey || a.CompletionBaseURL != b.CompletionBaseURL ||
		a.CompletionModel != b.CompletionModel || a.CompletionMaxTokens != b.CompletionMaxTokens ||
		a.CompletionTemperature != b.CompletionTemperature || a.CompletionTimeout != b.CompletionTimeout)
	add("status", mapStatusConfig(a) != mapStatusConfig(b))
	add("storage", a.StorageDriver != b.StorageDriver || a.StoragePath != b.StoragePath ||
		a.StorageBusyTimeout != b.StorageBusyTimeout || a.StorageRetention != b.StorageRetention)
	add("logging", mapLogConfig(a) != mapLogConfig(b))
	return out
}

func locName(l *time.Location) string {
	if l == nil {
		return time.Local.String()
	}
	return l.String()
}
