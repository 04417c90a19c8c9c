// Package discord is the platform collaborator: it converges a guild's
// channel/category/thread topology onto the feed collection's desired shape
// and renders feed items as messages.
package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

type ChannelKind int

const (
	KindText ChannelKind = iota
	KindCategory
	KindThread
)

// Channel is the slice of guild-channel state the reconciler cares about.
type Channel struct {
	ID       string
	Name     string
	Topic    string
	ParentID string
	Kind     ChannelKind
	Archived bool
}

// ChannelAPI is the set of platform operations the reconciler and publisher
// issue. The production implementation wraps a discordgo session; tests
// substitute a fake.
type ChannelAPI interface {
	GuildChannels(ctx context.Context, guildID string) ([]Channel, error)
	ActiveThreads(ctx context.Context, guildID string) ([]Channel, error)
	ArchivedThreads(ctx context.Context, parentID string) ([]Channel, error)

	CreateCategory(ctx context.Context, guildID, name string) (Channel, error)
	CreateTextChannel(ctx context.Context, guildID, name, topic, parentID string) (Channel, error)
	EditChannel(ctx context.Context, channelID, topic, parentID string) error
	DeleteChannel(ctx context.Context, channelID string) error
	CreateThread(ctx context.Context, parentID, name string) (Channel, error)

	SendMessage(ctx context.Context, channelID, content string) (string, error)
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
