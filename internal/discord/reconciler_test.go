package discord

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwarden/internal/feed"
)

const testGuild = "guild-1"

type fakeMessage struct {
	id      string
	content string
	embed   *discordgo.MessageEmbed
}

type fakeChannelAPI struct {
	channels  []Channel
	archived  map[string][]Channel
	messages  map[string][]fakeMessage
	reactions map[string][]string
	deleted   []string
	listErr   error
	// listErrGuild scopes listErr to one guild; empty fails every guild.
	listErrGuild string
	nextID       int
	ops          []string
}

func newFakeChannelAPI() *fakeChannelAPI {
	return &fakeChannelAPI{
		archived:  map[string][]Channel{},
		messages:  map[string][]fakeMessage{},
		reactions: map[string][]string{},
	}
}

func (f *fakeChannelAPI) id() string {
	f.nextID++

	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeChannelAPI) GuildChannels(_ context.Context, guildID string) ([]Channel, error) {
	if f.listErr != nil && (f.listErrGuild == "" || f.listErrGuild == guildID) {
		return nil, f.listErr
	}

	var channels []Channel
	for _, channel := range f.channels {
		if channel.Kind != KindThread {
			channels = append(channels, channel)
		}
	}

	return channels, nil
}

func (f *fakeChannelAPI) ActiveThreads(_ context.Context, _ string) ([]Channel, error) {
	var threads []Channel
	for _, channel := range f.channels {
		if channel.Kind == KindThread && !channel.Archived {
			threads = append(threads, channel)
		}
	}

	return threads, nil
}

func (f *fakeChannelAPI) ArchivedThreads(_ context.Context, parentID string) ([]Channel, error) {
	return f.archived[parentID], nil
}

func (f *fakeChannelAPI) CreateCategory(_ context.Context, _, name string) (Channel, error) {
	channel := Channel{ID: f.id(), Name: name, Kind: KindCategory}
	f.channels = append(f.channels, channel)
	f.ops = append(f.ops, "create-category:"+name)

	return channel, nil
}

func (f *fakeChannelAPI) CreateTextChannel(
	_ context.Context,
	_, name, topic, parentID string,
) (Channel, error) {
	channel := Channel{ID: f.id(), Name: name, Topic: topic, ParentID: parentID, Kind: KindText}
	f.channels = append(f.channels, channel)
	f.ops = append(f.ops, "create-channel:"+name)

	return channel, nil
}

func (f *fakeChannelAPI) EditChannel(_ context.Context, channelID, topic, parentID string) error {
	for i := range f.channels {
		if f.channels[i].ID == channelID {
			f.channels[i].Topic = topic
			f.channels[i].ParentID = parentID
			f.ops = append(f.ops, "edit:"+f.channels[i].Name)

			return nil
		}
	}

	return fmt.Errorf("no channel %s", channelID)
}

func (f *fakeChannelAPI) DeleteChannel(_ context.Context, channelID string) error {
	for i := range f.channels {
		if f.channels[i].ID == channelID {
			f.ops = append(f.ops, "delete:"+f.channels[i].Name)
			f.channels = append(f.channels[:i], f.channels[i+1:]...)

			return nil
		}
	}

	return fmt.Errorf("no channel %s", channelID)
}

func (f *fakeChannelAPI) CreateThread(_ context.Context, parentID, name string) (Channel, error) {
	channel := Channel{ID: f.id(), Name: name, ParentID: parentID, Kind: KindThread}
	f.channels = append(f.channels, channel)
	f.ops = append(f.ops, "create-thread:"+name)

	return channel, nil
}

func (f *fakeChannelAPI) SendMessage(_ context.Context, channelID, content string) (string, error) {
	id := f.id()
	f.messages[channelID] = append(f.messages[channelID], fakeMessage{id: id, content: content})

	return id, nil
}

func (f *fakeChannelAPI) SendEmbed(
	_ context.Context,
	channelID string,
	embed *discordgo.MessageEmbed,
) (string, error) {
	id := f.id()
	f.messages[channelID] = append(f.messages[channelID], fakeMessage{id: id, embed: embed})

	return id, nil
}

func (f *fakeChannelAPI) AddReaction(_ context.Context, _, messageID, emoji string) error {
	f.reactions[messageID] = append(f.reactions[messageID], emoji)

	return nil
}

func (f *fakeChannelAPI) DeleteMessage(_ context.Context, _, messageID string) error {
	f.deleted = append(f.deleted, messageID)

	return nil
}

func (f *fakeChannelAPI) byName(name string) (Channel, bool) {
	for _, channel := range f.channels {
		if channel.Name == name {
			return channel, true
		}
	}

	return Channel{}, false
}

func testFeed(title, category string) feed.Feed {
	return feed.Feed{Kind: feed.KindRSS, RSS: &feed.RSSChannel{
		Title:          title,
		Description:    "about " + title,
		URL:            "https://example.com/" + CanonicalName(title) + ".xml",
		ServerCategory: category,
	}}
}

func TestReconcileCreatesTopology(t *testing.T) {
	api := newFakeChannelAPI()
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	reconciler.Reconcile(context.Background(), []feed.Feed{testFeed("Hacker News", "Tech")})

	require.Equal(t, []string{
		"create-category:tech",
		"create-channel:hacker-news",
		"create-thread:read-hacker-news",
	}, api.ops, "category must exist before its channel, the thread comes last")

	channel, ok := api.byName("hacker-news")
	require.True(t, ok)
	category, ok := api.byName("tech")
	require.True(t, ok)
	assert.Equal(t, category.ID, channel.ParentID)
	assert.Equal(t, "about Hacker News", channel.Topic)

	thread, ok := api.byName("read-hacker-news")
	require.True(t, ok)
	assert.Equal(t, channel.ID, thread.ParentID)

	require.Len(t, api.messages[channel.ID], 1, "placeholder message must be posted")
}

func TestReconcileUpdatesInPlace(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "cat", Name: "tech", Kind: KindCategory},
		{ID: "chan", Name: "hacker-news", Topic: "stale", Kind: KindText},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	reconciler.Reconcile(context.Background(), []feed.Feed{testFeed("Hacker News", "Tech")})

	assert.Equal(t, []string{"edit:hacker-news"}, api.ops)

	channel, ok := api.byName("hacker-news")
	require.True(t, ok)
	assert.Equal(t, "about Hacker News", channel.Topic)
	assert.Equal(t, "cat", channel.ParentID)
}

func TestReconcileConvergedIsNoOp(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Topic: "about Hacker News", Kind: KindText},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	reconciler.Reconcile(context.Background(), []feed.Feed{testFeed("Hacker News", "")})

	assert.Empty(t, api.ops)
}

func TestReconcileDeletesEmptyCategories(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "cat-1", Name: "tech", Kind: KindCategory},
		{ID: "cat-2", Name: "abandoned", Kind: KindCategory},
		{ID: "chan", Name: "hacker-news", Topic: "about Hacker News", ParentID: "cat-1", Kind: KindText},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	reconciler.Reconcile(context.Background(), []feed.Feed{testFeed("Hacker News", "Tech")})

	assert.Equal(t, []string{"delete:abandoned"}, api.ops)
	_, ok := api.byName("tech")
	assert.True(t, ok)
}

func TestReconcileListFailureSkipsGuild(t *testing.T) {
	api := newFakeChannelAPI()
	api.listErr = fmt.Errorf("boom")
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	reconciler.Reconcile(context.Background(), []feed.Feed{testFeed("Hacker News", "Tech")})

	assert.Empty(t, api.ops)
}

func TestRemoveFeed(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "cat", Name: "tech", Kind: KindCategory},
		{ID: "chan", Name: "hacker-news", ParentID: "cat", Kind: KindText},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	f := testFeed("Hacker News", "Tech")
	reconciler.RemoveFeed(context.Background(), &f)

	assert.Equal(t, []string{"delete:hacker-news", "delete:tech"}, api.ops)
	assert.Empty(t, api.channels)
}

func TestMoveToRead(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
		{ID: "thread", Name: "read-hacker-news", ParentID: "chan", Kind: KindThread},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	message := &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan",
		Embeds: []*discordgo.MessageEmbed{
			{Fields: []*discordgo.MessageEmbedField{{Name: LinkFieldName, Value: "https://example.com/posts/1"}}},
		},
	}

	err := reconciler.MoveToRead(context.Background(), testGuild, "hacker-news", message)
	require.NoError(t, err)

	require.Len(t, api.messages["thread"], 1)
	assert.Equal(t, "https://example.com/posts/1",
		api.messages["thread"][0].embed.Fields[0].Value)
	assert.Equal(t, []string{"msg-1"}, api.deleted)
	assert.Equal(t, []string{MarkUnreadEmoji}, api.reactions[api.messages["thread"][0].id])
}

func TestMoveToReadArchivedThreadFallback(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
	}
	api.archived["chan"] = []Channel{
		{ID: "thread", Name: "read-hacker-news", ParentID: "chan", Kind: KindThread, Archived: true},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	message := &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan",
		Embeds:    []*discordgo.MessageEmbed{{}},
	}

	err := reconciler.MoveToRead(context.Background(), testGuild, "hacker-news", message)
	require.NoError(t, err)

	assert.Len(t, api.messages["thread"], 1)
}

func TestMoveToUnread(t *testing.T) {
	api := newFakeChannelAPI()
	api.channels = []Channel{
		{ID: "chan", Name: "hacker-news", Kind: KindText},
		{ID: "thread", Name: "read-hacker-news", ParentID: "chan", Kind: KindThread},
	}
	reconciler := NewReconciler(api, []string{testGuild}, slog.Default())

	message := &discordgo.Message{
		ID:        "msg-2",
		ChannelID: "thread",
		Embeds:    []*discordgo.MessageEmbed{{}},
	}

	err := reconciler.MoveToUnread(context.Background(), testGuild, "read-hacker-news", message)
	require.NoError(t, err)

	require.Len(t, api.messages["chan"], 1)
	assert.Equal(t, []string{"msg-2"}, api.deleted)
	assert.Equal(t, []string{MarkReadEmoji}, api.reactions[api.messages["chan"][0].id])
}
