package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	threadArchiveMinutes = 10080
	archivedThreadsLimit = 100
)

// SessionAPI implements ChannelAPI over a discordgo session. discordgo
// handles rate-limit backoff internally; contexts gate the calls here.
type SessionAPI struct {
	session *discordgo.Session
}

func NewSessionAPI(session *discordgo.Session) *SessionAPI {
	return &SessionAPI{session: session}
}

func (a *SessionAPI) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list channels of guild %s: %w", guildID, err)
	}

	converted := make([]Channel, 0, len(channels))
	for _, channel := range channels {
		converted = append(converted, convertChannel(channel))
	}

	return converted, nil
}

func (a *SessionAPI) ActiveThreads(ctx context.Context, guildID string) ([]Channel, error) {
	list, err := a.session.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list active threads of guild %s: %w", guildID, err)
	}

	converted := make([]Channel, 0, len(list.Threads))
	for _, thread := range list.Threads {
		converted = append(converted, convertChannel(thread))
	}

	return converted, nil
}

func (a *SessionAPI) ArchivedThreads(ctx context.Context, parentID string) ([]Channel, error) {
	list, err := a.session.ThreadsArchived(parentID, nil, archivedThreadsLimit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list archived threads of channel %s: %w", parentID, err)
	}

	converted := make([]Channel, 0, len(list.Threads))
	for _, thread := range list.Threads {
		converted = append(converted, convertChannel(thread))
	}

	return converted, nil
}

func (a *SessionAPI) CreateCategory(ctx context.Context, guildID, name string) (Channel, error) {
	channel, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Channel{}, fmt.Errorf("failed to create category %q in guild %s: %w", name, guildID, err)
	}

	return convertChannel(channel), nil
}

func (a *SessionAPI) CreateTextChannel(
	ctx context.Context,
	guildID, name, topic, parentID string,
) (Channel, error) {
	channel, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    topic,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Channel{}, fmt.Errorf("failed to create channel %q in guild %s: %w", name, guildID, err)
	}

	return convertChannel(channel), nil
}

func (a *SessionAPI) EditChannel(ctx context.Context, channelID, topic, parentID string) error {
	_, err := a.session.ChannelEdit(channelID, &discordgo.ChannelEdit{
		Topic:    topic,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to edit channel %s: %w", channelID, err)
	}

	return nil
}

func (a *SessionAPI) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := a.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}

	return nil
}

func (a *SessionAPI) CreateThread(ctx context.Context, parentID, name string) (Channel, error) {
	thread, err := a.session.ThreadStart(
		parentID,
		name,
		discordgo.ChannelTypeGuildPublicThread,
		threadArchiveMinutes,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return Channel{}, fmt.Errorf("failed to create thread %q under channel %s: %w", name, parentID, err)
	}

	return convertChannel(thread), nil
}

func (a *SessionAPI) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	message, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}

	return message.ID, nil
}

func (a *SessionAPI) SendEmbed(
	ctx context.Context,
	channelID string,
	embed *discordgo.MessageEmbed,
) (string, error) {
	message, err := a.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send embed to channel %s: %w", channelID, err)
	}

	return message.ID, nil
}

func (a *SessionAPI) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	err := a.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to add reaction to message %s: %w", messageID, err)
	}

	return nil
}

func (a *SessionAPI) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}

	return nil
}

func convertChannel(channel *discordgo.Channel) Channel {
	converted := Channel{
		ID:       channel.ID,
		Name:     channel.Name,
		Topic:    channel.Topic,
		ParentID: channel.ParentID,
	}

	switch channel.Type {
	case discordgo.ChannelTypeGuildCategory:
		converted.Kind = KindCategory
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		converted.Kind = KindThread
	default:
		converted.Kind = KindText
	}

	if channel.ThreadMetadata != nil {
		converted.Archived = channel.ThreadMetadata.Archived
	}

	return converted
}
