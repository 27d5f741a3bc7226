package transport

import "context"

// Message is one inbound guild message.
type Message struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string // display name (nick, global name or username)
	AuthorBot  bool
	Text       string
}

type ChannelKind int

const (
	ChannelText ChannelKind = iota
	ChannelVoice
	ChannelOther
)

// Channel is a channel snapshot with the bot's computed permissions.
type Channel struct {
	ID      string
	Name    string
	Kind    ChannelKind
	CanView bool
	CanSend bool
}

// Community is a guild snapshot. Channels keep the platform's enumeration order.
type Community struct {
	ID              string
	Name            string
	SystemChannelID string
	Channels        []Channel
}

// Channel returns the channel with the given ID, if present in the snapshot.
func (c Community) Channel(id string) (Channel, bool) {
	if id == "" {
		return Channel{}, false
	}
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich message.
type Embed struct {
	Title       string
	Description string
	Color       int
	ImageURL    string
	Footer      string
	Fields      []EmbedField
}

// Sender is the outbound half of the gateway.
type Sender interface {
	SendText(ctx context.Context, channelID, text string) error
	SendEmbed(ctx context.Context, channelID string, e Embed) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Directory lists the communities the bot is currently connected to.
type Directory interface {
	Communities() []Community
}

type MessageHandler func(ctx context.Context, m Message)

type JoinHandler func(ctx context.Context, c Community)

// Gateway is a connected chat platform session.
type Gateway interface {
	Sender
	Directory

	OnMessage(h MessageHandler)
	OnJoin(h JoinHandler)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
