package discord

import (
	"sort"

	"github.com/bwmarrin/discordgo"

	"purrbot/internal/transport"
)

const (
	permView  = discordgo.PermissionViewChannel
	permSend  = discordgo.PermissionSendMessages
	permAdmin = discordgo.PermissionAdministrator
)

// displayName prefers the guild nickname, then the global display name.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return ""
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func toMessage(m *discordgo.Message) transport.Message {
	out := transport.Message{
		ID:         m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorName: displayName(m),
		Text:       m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorBot = m.Author.Bot
	}
	return out
}

func channelKind(t discordgo.ChannelType) transport.ChannelKind {
	switch t {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return transport.ChannelText
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		return transport.ChannelVoice
	}
	return transport.ChannelOther
}

// guildCopy is a lock-free copy of the guild fields a snapshot needs.
type guildCopy struct {
	id, name, systemChannelID string
	channels                  []channelCopy
}

type channelCopy struct {
	id, name string
	typ      discordgo.ChannelType
	position int
}

func copyGuild(g *discordgo.Guild) guildCopy {
	gc := guildCopy{id: g.ID, name: g.Name, systemChannelID: g.SystemChannelID}
	gc.channels = make([]channelCopy, 0, len(g.Channels))
	for _, ch := range g.Channels {
		if ch == nil {
			continue
		}
		gc.channels = append(gc.channels, channelCopy{id: ch.ID, name: ch.Name, typ: ch.Type, position: ch.Position})
	}
	return gc
}

// community builds a snapshot with channels in sidebar order (position, then
// ID). perms returns the bot's permission bits for a channel.
func (gc guildCopy) community(perms func(channelID string) int64) transport.Community {
	chans := append([]channelCopy(nil), gc.channels...)
	sort.SliceStable(chans, func(i, j int) bool {
		if chans[i].position != chans[j].position {
			return chans[i].position < chans[j].position
		}
		return snowflakeLess(chans[i].id, chans[j].id)
	})

	c := transport.Community{ID: gc.id, Name: gc.name, SystemChannelID: gc.systemChannelID}
	c.Channels = make([]transport.Channel, 0, len(chans))
	for _, ch := range chans {
		kind := channelKind(ch.typ)
		out := transport.Channel{ID: ch.id, Name: ch.name, Kind: kind}
		if kind == transport.ChannelText && perms != nil {
			p := perms(ch.id)
			out.CanView = has(p, permView)
			out.CanSend = has(p, permSend)
		}
		c.Channels = append(c.Channels, out)
	}
	return c
}

func has(perms, bit int64) bool {
	return perms&permAdmin != 0 || perms&bit == bit
}

// snowflakeLess orders decimal snowflakes numerically without parsing.
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func toEmbed(e transport.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}
