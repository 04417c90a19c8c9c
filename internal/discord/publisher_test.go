package discord

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwarden/internal/feed"
)

func TestPublishUnreadItem(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
		{ID: "thread", Name: "read-hacker-news", ParentID: "chan", Kind: KindThread},
	}
	publisher := NewPublisher(api, []string{testGuild}, slog.Default())

	published := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	err := publisher.Publish(context.Background(), feed.NewItem{
		FeedTitle: "Hacker News",
		RSS: &feed.RSSItem{
			Title:       "First post",
			Link:        "https://example.com/posts/1",
			Description: "The first post",
			Published:   &published,
		},
	})
	require.NoError(t, err)

	require.Len(t, api.messages["chan"], 1)
	assert.Empty(t, api.messages["thread"])

	message := api.messages["chan"][0]
	assert.Equal(t, "First post", message.embed.Title)
	assert.Equal(t, "The first post", message.embed.Description)
	assert.Equal(t, published.Format(time.RFC3339), message.embed.Timestamp)
	assert.Equal(t, []string{MarkReadEmoji}, api.reactions[message.id])

	require.NotEmpty(t, message.embed.Fields)
	assert.Equal(t, LinkFieldName, message.embed.Fields[0].Name)
	assert.Equal(t, "https://example.com/posts/1", message.embed.Fields[0].Value)
}

func TestPublishReadItemGoesToReadThread(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
		{ID: "thread", Name: "read-hacker-news", ParentID: "chan", Kind: KindThread},
	}
	publisher := NewPublisher(api, []string{testGuild}, slog.Default())

	err := publisher.Publish(context.Background(), feed.NewItem{
		FeedTitle: "Hacker News",
		RSS: &feed.RSSItem{
			Link: "https://example.com/posts/1",
			Read: true,
		},
	})
	require.NoError(t, err)

	assert.Empty(t, api.messages["chan"])
	require.Len(t, api.messages["thread"], 1)

	message := api.messages["thread"][0]
	assert.Equal(t, untitledItem, message.embed.Title)
	assert.Equal(t, []string{MarkUnreadEmoji}, api.reactions[message.id])
}

func TestPublishMissingChannelIsSkipped(t *testing.T) {
	api := newFakeChannelAPI()
	publisher := NewPublisher(api, []string{testGuild}, slog.Default())

	err := publisher.Publish(context.Background(), feed.NewItem{
		FeedTitle: "Hacker News",
		RSS:       &feed.RSSItem{Link: "https://example.com/posts/1"},
	})
	require.NoError(t, err)

	assert.Empty(t, api.messages)
}

func TestPublishFailedGuildDoesNotBlockOthers(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
	}
	api.listErr = fmt.Errorf("boom")
	api.listErrGuild = "guild-down"
	publisher := NewPublisher(api, []string{"guild-down", testGuild}, slog.Default())

	err := publisher.Publish(context.Background(), feed.NewItem{
		FeedTitle: "Hacker News",
		RSS:       &feed.RSSItem{Link: "https://example.com/posts/1"},
	})
	require.NoError(t, err)

	assert.Len(t, api.messages["chan"], 1, "the healthy guild still receives the item")
}

func TestAtomEntryEmbed(t *testing.T) {
	entry := &feed.AtomEntry{
		ID:    "urn:entry:1",
		Title: "A video",
		Links: []feed.AtomLink{
			{Href: "https://example.com/videos/1"},
			{Href: "https://example.com/videos/1.png", Rel: "enclosure", Type: "image/png"},
		},
		Author: &feed.AtomPerson{Name: "Example Author"},
	}

	embed := atomEntryEmbed(entry)

	assert.Equal(t, "A video", embed.Title)
	assert.Equal(t, noSummary, embed.Description)
	require.NotNil(t, embed.Author)
	assert.Equal(t, "Example Author", embed.Author.Name)
	require.NotNil(t, embed.Image)
	assert.Equal(t, "https://example.com/videos/1.png", embed.Image.URL)
	assert.Equal(t, "https://example.com/videos/1", EmbedLink(&discordgo.Message{
		Embeds: []*discordgo.MessageEmbed{embed},
	}))
}

func TestEmbedLink(t *testing.T) {
	assert.Empty(t, EmbedLink(nil))
	assert.Empty(t, EmbedLink(&discordgo.Message{}))
	assert.Empty(t, EmbedLink(&discordgo.Message{
		Embeds: []*discordgo.MessageEmbed{{}, {}},
	}))
}
