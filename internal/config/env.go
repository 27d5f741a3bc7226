package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Existing variables win. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. getenv is usually os.Getenv.
//
// Recognised variables:
//
//	DISCORD_TOKEN (or BOT_TOKEN), OPENAI_API_KEY,
//	REPLY_PROBABILITY, CHANNEL_COOLDOWN (seconds), USER_COOLDOWN (seconds),
//	DAILY_HOUR (0-23), MEME_INTERVAL (minutes), PORT
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil || getenv == nil {
		return nil
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	} else if v := get("BOT_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := get("OPENAI_API_KEY"); v != "" {
		cfg.Completion.APIKey = v
	}
	if v := get("REPLY_PROBABILITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("REPLY_PROBABILITY: %w", err)
		}
		cfg.Engagement.ReplyProbability = &f
	}
	if v := get("CHANNEL_COOLDOWN"); v != "" {
		d, err := envUnits("CHANNEL_COOLDOWN", v, time.Second, true)
		if err != nil {
			return err
		}
		cfg.Engagement.ChannelCooldown = d
	}
	if v := get("USER_COOLDOWN"); v != "" {
		d, err := envUnits("USER_COOLDOWN", v, time.Second, true)
		if err != nil {
			return err
		}
		cfg.Engagement.UserCooldown = d
	}
	if v := get("DAILY_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DAILY_HOUR: %w", err)
		}
		cfg.Broadcast.DailyHour = &n
	}
	if v := get("MEME_INTERVAL"); v != "" {
		d, err := envUnits("MEME_INTERVAL", v, time.Minute, false)
		if err != nil {
			return err
		}
		cfg.Broadcast.MemeInterval = d
	}
	if v := get("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Status.Addr = ":" + v
	}
	return nil
}
