package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"mvdan.cc/xurls/v2"

	"feedwarden/internal/discord"
	"feedwarden/internal/updater"
)

const (
	commandPrefix  = "~"
	exportFileName = "feeds.opml"
)

var urlPattern = xurls.Strict()

func (b *Bot) messageHandler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}

		content := strings.TrimSpace(m.Content)
		if !strings.HasPrefix(content, commandPrefix) {
			return
		}

		name, rest, _ := strings.Cut(content, " ")
		rest = strings.TrimSpace(rest)

		b.log.InfoContext(ctx, "Command received",
			"command", name,
			"author", m.Author.Username,
			"channelID", m.ChannelID)

		switch name {
		case "~ping":
			b.reply(ctx, m.ChannelID, "pong")
		case "~add":
			b.handleAdd(ctx, m, rest)
		case "~edit":
			b.handleEdit(ctx, m, rest)
		case "~remove":
			b.handleRemove(ctx, m, rest)
		case "~reload":
			b.handleReload(ctx, m, rest)
		case "~export":
			b.handleExport(ctx, m, rest)
		case "~import":
			b.handleImport(ctx, m)
		case "~exit":
			b.handleExit(ctx, m)
		}
	}
}

func (b *Bot) handleAdd(ctx context.Context, m *discordgo.MessageCreate, rest string) {
	url := urlPattern.FindString(rest)
	if url == "" {
		b.reply(ctx, m.ChannelID, "Usage: ~add <url> [title]")

		return
	}
	title := strings.TrimSpace(strings.Replace(rest, url, "", 1))

	fetched, err := b.fetcher.Fetch(ctx, url, title, "")
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to fetch feed for subscription",
			"error", err,
			"url", url)
		b.reply(ctx, m.ChannelID, "Could not fetch a feed from "+url)

		return
	}

	if err = b.send(ctx, updater.AddFeed{Feed: fetched}); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	b.reply(ctx, m.ChannelID, fmt.Sprintf("Subscribed to %q.", fetched.Title()))
}

func (b *Bot) handleEdit(ctx context.Context, m *discordgo.MessageCreate, rest string) {
	cmd, ok := parseEdit(rest)
	if !ok {
		b.reply(ctx, m.ChannelID, "Usage: ~edit <feed> url=... title=... category=...")

		return
	}

	if err := b.send(ctx, cmd); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	b.reply(ctx, m.ChannelID, "Feed updated.")
}

func (b *Bot) handleRemove(ctx context.Context, m *discordgo.MessageCreate, rest string) {
	if rest == "" {
		b.reply(ctx, m.ChannelID, "Usage: ~remove <feed>")

		return
	}

	if err := b.send(ctx, updater.RemoveFeed{Target: rest}); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	b.reply(ctx, m.ChannelID, "Feed removed.")
}

func (b *Bot) handleReload(ctx context.Context, m *discordgo.MessageCreate, rest string) {
	if err := b.send(ctx, updater.ReloadFeed{Target: rest}); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	b.reply(ctx, m.ChannelID, "Reload finished.")
}

func (b *Bot) handleExport(ctx context.Context, m *discordgo.MessageCreate, rest string) {
	cmd := &updater.ExportOPML{Title: rest}
	if err := b.send(ctx, cmd); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	_, err := b.session.ChannelFileSend(
		m.ChannelID,
		exportFileName,
		bytes.NewReader(cmd.Result),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to send OPML export", "error", err)
	}
}

func (b *Bot) handleImport(ctx context.Context, m *discordgo.MessageCreate) {
	if len(m.Attachments) == 0 {
		b.reply(ctx, m.ChannelID, "Attach an OPML file to ~import.")

		return
	}

	data, err := b.download(ctx, m.Attachments[0].URL)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to download OPML attachment",
			"error", err,
			"url", m.Attachments[0].URL)
		b.reply(ctx, m.ChannelID, "Could not download the attachment.")

		return
	}

	if err = b.send(ctx, updater.ImportOPML{Data: data}); err != nil {
		b.reply(ctx, m.ChannelID, userMessage(err))

		return
	}

	b.reply(ctx, m.ChannelID, "Import finished.")
}

func (b *Bot) handleExit(ctx context.Context, m *discordgo.MessageCreate) {
	b.reply(ctx, m.ChannelID, "Shutting down.")

	if err := b.send(ctx, updater.Shutdown{}); err != nil {
		b.log.ErrorContext(ctx, "Failed to shut the actor down", "error", err)
	}
}

// parseEdit splits "~edit" arguments into the feed identifier and the
// key=value patches. A value runs until the next key=value token, so titles
// and categories may contain spaces.
func parseEdit(rest string) (updater.EditFeed, bool) {
	cmd := updater.EditFeed{}

	var target []string
	var key string
	var value []string

	flush := func() {
		if key == "" {
			return
		}
		joined := strings.Join(value, " ")
		switch key {
		case "url":
			cmd.URL = &joined
		case "title":
			cmd.Title = &joined
		case "category":
			cmd.Category = &joined
		}
		value = nil
	}

	for _, token := range strings.Fields(rest) {
		k, v, found := strings.Cut(token, "=")
		if found && (k == "url" || k == "title" || k == "category") {
			flush()
			key = k
			value = []string{v}

			continue
		}

		if key == "" {
			target = append(target, token)
		} else {
			value = append(value, token)
		}
	}
	flush()

	cmd.Target = strings.Join(target, " ")
	if cmd.Target == "" || (cmd.URL == nil && cmd.Title == nil && cmd.Category == nil) {
		return updater.EditFeed{}, false
	}

	return cmd, true
}

func (b *Bot) reactionHandler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageReactionAdd) {
	return func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.GuildID == "" || r.UserID == s.State.User.ID {
			return
		}

		emoji := r.Emoji.Name
		if emoji != discord.MarkReadEmoji && emoji != discord.MarkUnreadEmoji {
			return
		}

		message, err := s.ChannelMessage(r.ChannelID, r.MessageID, discordgo.WithContext(ctx))
		if err != nil {
			b.log.ErrorContext(ctx, "Failed to fetch reacted message",
				"error", err,
				"messageID", r.MessageID)

			return
		}
		if message.Author == nil || message.Author.ID != s.State.User.ID {
			return
		}

		link := discord.EmbedLink(message)
		if link == "" {
			return
		}

		channel, err := s.Channel(r.ChannelID, discordgo.WithContext(ctx))
		if err != nil {
			b.log.ErrorContext(ctx, "Failed to resolve reacted channel",
				"error", err,
				"channelID", r.ChannelID)

			return
		}

		inReadThread := strings.HasPrefix(channel.Name, discord.ReadPrefix)
		switch {
		case emoji == discord.MarkReadEmoji && !inReadThread:
			b.toggleRead(ctx, r.GuildID, channel.Name, message, true)
		case emoji == discord.MarkUnreadEmoji && inReadThread:
			b.toggleRead(ctx, r.GuildID, channel.Name, message, false)
		}
	}
}

func (b *Bot) toggleRead(
	ctx context.Context,
	guildID string,
	channelName string,
	message *discordgo.Message,
	read bool,
) {
	link := discord.EmbedLink(message)

	var cmd updater.Command = updater.MarkRead{ChannelName: channelName, ItemLink: link}
	if !read {
		cmd = updater.MarkUnread{ChannelName: channelName, ItemLink: link}
	}

	if err := b.send(ctx, cmd); err != nil {
		b.log.ErrorContext(ctx, "Failed to flip item read marker",
			"error", err,
			"channelName", channelName,
			"link", link)

		return
	}

	var err error
	if read {
		err = b.reconciler.MoveToRead(ctx, guildID, channelName, message)
	} else {
		err = b.reconciler.MoveToUnread(ctx, guildID, channelName, message)
	}
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to move item message",
			"error", err,
			"channelName", channelName,
			"link", link)
	}
}

func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	response, err := b.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s downloading %s", response.Status, url)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}

	return data, nil
}

func (b *Bot) reply(ctx context.Context, channelID, content string) {
	_, err := b.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to send reply",
			"error", err,
			"channelID", channelID)
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, updater.ErrFeedExists):
		return "That feed is already subscribed."
	case errors.Is(err, updater.ErrFeedNotFound):
		return "No subscribed feed matches that."
	case errors.Is(err, updater.ErrItemNotFound):
		return "That item is not in the feed anymore."
	default:
		return "Something went wrong, check the logs."
	}
}
