package discord

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"feedwarden/internal/feed"
)

const placeholderMessage = "Feed items will appear here."

// Reconciler converges each guild's channel topology onto the desired shape
// derived from the feed collection: one category per distinct label, one
// primary channel per feed, one read thread per channel. All operations are
// best effort; a failed channel operation is logged and the pass moves on.
type Reconciler struct {
	api    ChannelAPI
	guilds []string
	log    *slog.Logger
}

func NewReconciler(api ChannelAPI, guilds []string, log *slog.Logger) *Reconciler {
	return &Reconciler{
		api:    api,
		guilds: guilds,
		log:    log,
	}
}

// topologyIndex tracks a guild's channels by name during one pass,
// including ones the pass itself creates.
type topologyIndex struct {
	byName map[string]Channel
}

func (idx *topologyIndex) add(channel Channel) {
	idx.byName[channel.Name] = channel
}

func (idx *topologyIndex) children(categoryID string) int {
	count := 0
	for _, channel := range idx.byName {
		if channel.Kind == KindText && channel.ParentID == categoryID {
			count++
		}
	}

	return count
}

// Reconcile runs a full pass over every guild: ensure each feed's presence,
// then delete categories left without children. Failing to list a guild's
// channels aborts only that guild's pass.
func (r *Reconciler) Reconcile(ctx context.Context, feeds []feed.Feed) {
	r.run(ctx, feeds, true)
}

// EnsureFeeds ensures presence for the given feeds only, without the
// empty-category sweep. AddFeed and import use it for the new feeds alone.
func (r *Reconciler) EnsureFeeds(ctx context.Context, feeds []feed.Feed) {
	r.run(ctx, feeds, false)
}

func (r *Reconciler) run(ctx context.Context, feeds []feed.Feed, cleanup bool) {
	for _, guildID := range r.guilds {
		index, err := r.indexGuild(ctx, guildID)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to list guild channels, skipping guild pass",
				"error", err,
				"guildID", guildID)

			continue
		}

		for i := range feeds {
			if err := r.ensureFeed(ctx, guildID, index, &feeds[i]); err != nil {
				r.log.ErrorContext(ctx, "Failed to reconcile feed channel",
					"error", err,
					"guildID", guildID,
					"feedURL", feeds[i].URL(),
					"feedTitle", feeds[i].Title())
			}
		}

		if cleanup {
			r.deleteEmptyCategories(ctx, guildID, index)
		}
	}
}

func (r *Reconciler) indexGuild(ctx context.Context, guildID string) (*topologyIndex, error) {
	channels, err := r.api.GuildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}

	index := &topologyIndex{byName: make(map[string]Channel, len(channels))}
	for _, channel := range channels {
		index.add(channel)
	}

	threads, err := r.api.ActiveThreads(ctx, guildID)
	if err != nil {
		r.log.WarnContext(ctx, "Failed to list active threads",
			"error", err,
			"guildID", guildID)
	}
	for _, thread := range threads {
		index.add(thread)
	}

	// Archived threads only show up in a per-parent listing.
	for _, channel := range channels {
		if channel.Kind != KindText {
			continue
		}

		archived, archErr := r.api.ArchivedThreads(ctx, channel.ID)
		if archErr != nil {
			r.log.WarnContext(ctx, "Failed to list archived threads",
				"error", archErr,
				"guildID", guildID,
				"channelName", channel.Name)

			continue
		}
		for _, thread := range archived {
			index.add(thread)
		}
	}

	return index, nil
}

func (r *Reconciler) ensureFeed(
	ctx context.Context,
	guildID string,
	index *topologyIndex,
	f *feed.Feed,
) error {
	name := CanonicalName(f.Title())

	parentID := ""
	if label := f.ServerCategory(); label != "" {
		category, err := r.ensureCategory(ctx, guildID, index, label)
		if err != nil {
			return err
		}
		parentID = category.ID
	}

	if existing, ok := index.byName[name]; ok && existing.Kind == KindText {
		if existing.Topic == f.Description() && existing.ParentID == parentID {
			return nil
		}

		if err := r.api.EditChannel(ctx, existing.ID, f.Description(), parentID); err != nil {
			return err
		}

		existing.Topic = f.Description()
		existing.ParentID = parentID
		index.add(existing)

		return nil
	}

	channel, err := r.api.CreateTextChannel(ctx, guildID, name, f.Description(), parentID)
	if err != nil {
		return err
	}
	index.add(channel)

	if _, err = r.api.SendMessage(ctx, channel.ID, placeholderMessage); err != nil {
		r.log.WarnContext(ctx, "Failed to post placeholder message",
			"error", err,
			"guildID", guildID,
			"channelName", name)
	}

	thread, err := r.api.CreateThread(ctx, channel.ID, ReadChannelName(f.Title()))
	if err != nil {
		return err
	}
	index.add(thread)

	return nil
}

func (r *Reconciler) ensureCategory(
	ctx context.Context,
	guildID string,
	index *topologyIndex,
	label string,
) (Channel, error) {
	name := CanonicalName(label)
	if existing, ok := index.byName[name]; ok && existing.Kind == KindCategory {
		return existing, nil
	}

	category, err := r.api.CreateCategory(ctx, guildID, name)
	if err != nil {
		return Channel{}, err
	}
	index.add(category)

	return category, nil
}

func (r *Reconciler) deleteEmptyCategories(
	ctx context.Context,
	guildID string,
	index *topologyIndex,
) {
	for _, channel := range index.byName {
		if channel.Kind != KindCategory || index.children(channel.ID) > 0 {
			continue
		}

		if err := r.api.DeleteChannel(ctx, channel.ID); err != nil {
			r.log.ErrorContext(ctx, "Failed to delete empty category",
				"error", err,
				"guildID", guildID,
				"categoryName", channel.Name)
			continue
		}

		delete(index.byName, channel.Name)
	}
}

// RemoveFeed tears down a feed's presence in every guild: the primary
// channel (its threads go with it) and, when left childless, its category.
func (r *Reconciler) RemoveFeed(ctx context.Context, f *feed.Feed) {
	name := CanonicalName(f.Title())

	for _, guildID := range r.guilds {
		index, err := r.indexGuild(ctx, guildID)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to list guild channels, skipping guild pass",
				"error", err,
				"guildID", guildID)

			continue
		}

		channel, ok := index.byName[name]
		if !ok || channel.Kind != KindText {
			r.log.WarnContext(ctx, "No channel to remove for feed",
				"guildID", guildID,
				"channelName", name,
				"feedURL", f.URL())

			continue
		}

		if err := r.api.DeleteChannel(ctx, channel.ID); err != nil {
			r.log.ErrorContext(ctx, "Failed to delete feed channel",
				"error", err,
				"guildID", guildID,
				"channelName", name)

			continue
		}
		delete(index.byName, channel.Name)

		r.deleteEmptyCategories(ctx, guildID, index)
	}
}

// MoveToRead copies a published item message into the feed's read thread,
// deletes the original, and seeds the unread toggle on the copy.
func (r *Reconciler) MoveToRead(
	ctx context.Context,
	guildID string,
	channelName string,
	message *discordgo.Message,
) error {
	target, err := r.findThread(ctx, guildID, message.ChannelID, ReadPrefix+channelName)
	if err != nil {
		return err
	}

	return r.moveMessage(ctx, message, target, MarkUnreadEmoji)
}

// MoveToUnread is the inverse: from the read thread back to the primary
// channel, seeding the read toggle.
func (r *Reconciler) MoveToUnread(
	ctx context.Context,
	guildID string,
	threadName string,
	message *discordgo.Message,
) error {
	primaryName := strings.TrimPrefix(threadName, ReadPrefix)

	channels, err := r.api.GuildChannels(ctx, guildID)
	if err != nil {
		return err
	}

	for _, channel := range channels {
		if channel.Kind == KindText && channel.Name == primaryName {
			return r.moveMessage(ctx, message, channel.ID, MarkReadEmoji)
		}
	}

	return &NotFoundError{Name: primaryName}
}

func (r *Reconciler) findThread(
	ctx context.Context,
	guildID string,
	parentID string,
	name string,
) (string, error) {
	threads, err := r.api.ActiveThreads(ctx, guildID)
	if err != nil {
		return "", err
	}
	for _, thread := range threads {
		if thread.Name == name {
			return thread.ID, nil
		}
	}

	// Idle read threads auto-archive and vanish from the active listing.
	archived, err := r.api.ArchivedThreads(ctx, parentID)
	if err != nil {
		return "", err
	}
	for _, thread := range archived {
		if thread.Name == name {
			return thread.ID, nil
		}
	}

	return "", &NotFoundError{Name: name}
}

func (r *Reconciler) moveMessage(
	ctx context.Context,
	message *discordgo.Message,
	targetChannelID string,
	toggleEmoji string,
) error {
	if len(message.Embeds) == 0 {
		return &NotFoundError{Name: "embed"}
	}

	messageID, err := r.api.SendEmbed(ctx, targetChannelID, message.Embeds[0])
	if err != nil {
		return err
	}

	if err = r.api.DeleteMessage(ctx, message.ChannelID, message.ID); err != nil {
		return err
	}

	return r.api.AddReaction(ctx, targetChannelID, messageID, toggleEmoji)
}

// NotFoundError reports a missing channel, thread, or message part during a
// topology operation.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Name
}
