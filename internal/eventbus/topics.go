package eventbus

import "time"

const (
	TopicEngagement = "engagement.outcome"
	TopicDelivery   = "broadcast.delivered"
	TopicRun        = "broadcast.run"
)

// Engagement is published once per handled message that reached a branch.
type Engagement struct {
	GuildID   string
	ChannelID string
	UserID    string
	Outcome   string
	Detail    string
	Err       string
}

// Delivery is published once per broadcast target attempt.
type Delivery struct {
	Job       string
	GuildID   string
	ChannelID string
	Content   string // "phrase" | "meme" | "embed" | "none"
	Detail    string
	Err       string
}

// Run summarises one broadcast firing.
type Run struct {
	Job       string
	Started   time.Time
	Took      time.Duration
	Targets   int
	Delivered int
	Failed    int
}
