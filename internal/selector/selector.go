// Package selector picks the channel a broadcast goes to in each guild.
package selector

import (
	"strings"

	"purrbot/internal/transport"
)

// preferredNames are matched as case-insensitive substrings of the channel name.
var preferredNames = []string{"general", "chat", "main", "lobby"}

// Select returns the broadcast channel for c. First match wins:
//  1. the system channel, if the bot can send there
//  2. the first text channel named like general/chat/main/lobby that the bot can view and send in
//  3. the first text channel the bot can view and send in
//
// Select is pure: the same snapshot always yields the same channel.
func Select(c transport.Community) (transport.Channel, bool) {
	if ch, ok := c.Channel(c.SystemChannelID); ok && ch.Kind == transport.ChannelText && ch.CanSend {
		return ch, true
	}
	for _, ch := range c.Channels {
		if writable(ch) && preferredName(ch.Name) {
			return ch, true
		}
	}
	for _, ch := range c.Channels {
		if writable(ch) {
			return ch, true
		}
	}
	return transport.Channel{}, false
}

func writable(ch transport.Channel) bool {
	return ch.Kind == transport.ChannelText && ch.CanView && ch.CanSend
}

func preferredName(name string) bool {
	name = strings.ToLower(name)
	for _, p := range preferredNames {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Target is a resolved (guild, channel) pair.
type Target struct {
	Community transport.Community
	Channel   transport.Channel
}

// Targets resolves every community in order, skipping those without a channel.
func Targets(communities []transport.Community) []Target {
	out := make([]Target, 0, len(communities))
	for _, c := range communities {
		if ch, ok := Select(c); ok {
			out = append(out, Target{Community: c, Channel: ch})
		}
	}
	return out
}
