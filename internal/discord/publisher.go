package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"feedwarden/internal/feed"
)

const (
	// MarkReadEmoji on an unread item's message moves it to the read
	// thread; MarkUnreadEmoji on a read item's message moves it back.
	MarkReadEmoji   = "\U0001F4D6" // open book
	MarkUnreadEmoji = "\U0001F4D5" // closed book

	// LinkFieldName labels the embed field carrying the item's identity;
	// reaction handlers read it back to resolve the item.
	LinkFieldName = "link"

	untitledItem = "(Untitled)"
	noSummary    = "(No summary)"
)

// Publisher renders new items into the feed's channel. Rendering itself is
// pure; only the send has side effects.
type Publisher struct {
	api    ChannelAPI
	guilds []string
	log    *slog.Logger
}

func NewPublisher(api ChannelAPI, guilds []string, log *slog.Logger) *Publisher {
	return &Publisher{
		api:    api,
		guilds: guilds,
		log:    log,
	}
}

// Publish sends one new item to its feed's channel in every guild: read
// items to the companion thread, unread ones to the primary channel, seeded
// with the matching toggle reaction.
func (p *Publisher) Publish(ctx context.Context, item feed.NewItem) error {
	embed := itemEmbed(item)

	channelName := CanonicalName(item.FeedTitle)
	emoji := MarkReadEmoji
	if itemRead(item) {
		channelName = ReadChannelName(item.FeedTitle)
		emoji = MarkUnreadEmoji
	}

	for _, guildID := range p.guilds {
		channelID, err := p.findChannel(ctx, guildID, channelName)
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to look up feed channel, skipping guild",
				"error", err,
				"guildID", guildID,
				"channelName", channelName)

			continue
		}
		if channelID == "" {
			p.log.WarnContext(ctx, "No channel for feed item, skipping publish",
				"guildID", guildID,
				"channelName", channelName,
				"feedTitle", item.FeedTitle)

			continue
		}

		messageID, err := p.api.SendEmbed(ctx, channelID, embed)
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to publish feed item",
				"error", err,
				"guildID", guildID,
				"channelName", channelName)

			continue
		}

		if err = p.api.AddReaction(ctx, channelID, messageID, emoji); err != nil {
			p.log.WarnContext(ctx, "Failed to seed toggle reaction",
				"error", err,
				"guildID", guildID,
				"channelName", channelName,
				"messageID", messageID)
		}
	}

	return nil
}

func (p *Publisher) findChannel(ctx context.Context, guildID, name string) (string, error) {
	channels, err := p.api.GuildChannels(ctx, guildID)
	if err != nil {
		return "", err
	}
	for _, channel := range channels {
		if channel.Name == name {
			return channel.ID, nil
		}
	}

	threads, err := p.api.ActiveThreads(ctx, guildID)
	if err != nil {
		return "", err
	}
	for _, thread := range threads {
		if thread.Name == name {
			return thread.ID, nil
		}
	}

	return "", nil
}

func itemRead(item feed.NewItem) bool {
	switch {
	case item.RSS != nil:
		return item.RSS.Read
	case item.Atom != nil:
		return item.Atom.Read
	}
	return false
}

func itemEmbed(item feed.NewItem) *discordgo.MessageEmbed {
	switch {
	case item.RSS != nil:
		return rssItemEmbed(item.RSS)
	case item.Atom != nil:
		return atomEntryEmbed(item.Atom)
	}
	return nil
}

func rssItemEmbed(item *feed.RSSItem) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       item.Title,
		Description: item.Description,
	}

	if embed.Title == "" {
		embed.Title = untitledItem
	}
	if item.Author != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: item.Author}
	}
	if item.Enclosure != nil && feed.IsImageMIMEType(item.Enclosure.Type) {
		embed.Image = &discordgo.MessageEmbedImage{URL: item.Enclosure.URL}
	}
	if item.Published != nil {
		embed.Timestamp = item.Published.Format(time.RFC3339)
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  LinkFieldName,
		Value: item.Link,
	})
	if item.Comments != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "comments",
			Value:  item.Comments,
			Inline: true,
		})
	}
	if item.Source != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "source",
			Value:  item.Source.Title,
			Inline: true,
		})
		if item.Source.URL != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   "source url",
				Value:  item.Source.URL,
				Inline: true,
			})
		}
	}

	return embed
}

func atomEntryEmbed(entry *feed.AtomEntry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       entry.Title,
		Description: entry.Summary,
	}

	if embed.Title == "" {
		embed.Title = untitledItem
	}
	if embed.Description == "" {
		embed.Description = noSummary
	}
	if entry.Author != nil {
		author := &discordgo.MessageEmbedAuthor{Name: entry.Author.Name, URL: entry.Author.URI}
		if entry.Author.Email != "" {
			author.Name = entry.Author.Name + " (" + entry.Author.Email + ")"
		}
		embed.Author = author
	}
	if image := entry.EnclosureImage(); image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: image}
	}
	if entry.Published != nil {
		embed.Timestamp = entry.Published.Format(time.RFC3339)
	} else if entry.Updated != nil {
		embed.Timestamp = entry.Updated.Format(time.RFC3339)
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  LinkFieldName,
		Value: entry.LinkHref(),
	})

	return embed
}

// EmbedLink extracts the item identity a published message carries, or ""
// when the message is not one of ours.
func EmbedLink(message *discordgo.Message) string {
	if message == nil || len(message.Embeds) != 1 {
		return ""
	}

	for _, field := range message.Embeds[0].Fields {
		if field.Name == LinkFieldName {
			return field.Value
		}
	}

	return ""
}
