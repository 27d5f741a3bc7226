package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

const DefaultRetention = 7 * 24 * time.Hour

// Config configures storage. Driver "" or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // entries older than this are pruned; 0 means DefaultRetention
}

// AuditEntry records one outbound action or broadcast run.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"` // event topic
	GuildID   string    `json:"guild_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
}
