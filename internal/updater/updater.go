package updater

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"feedwarden/internal/discord"
	"feedwarden/internal/feed"
	"feedwarden/internal/opml"
	"feedwarden/internal/store"
)

const (
	mailboxCap         = 8
	defaultExportTitle = "Subscriptions"
)

// Topology maintains the Discord channel layout derived from the collection.
type Topology interface {
	Reconcile(ctx context.Context, feeds []feed.Feed)
	EnsureFeeds(ctx context.Context, feeds []feed.Feed)
	RemoveFeed(ctx context.Context, f *feed.Feed)
}

// ItemPublisher delivers one appended item to its feed channels.
type ItemPublisher interface {
	Publish(ctx context.Context, item feed.NewItem) error
}

type envelope struct {
	cmd   Command
	reply chan<- error
}

// Updater owns the feed collection. Exactly one goroutine, the one running
// Run, reads and mutates it; everyone else talks to that goroutine through
// Send. Commands and poll ticks are serialized by a single select loop.
type Updater struct {
	store     *store.Store
	fetcher   *feed.Fetcher
	topology  Topology
	publisher ItemPublisher
	interval  time.Duration
	mailbox   chan envelope
	ticks     chan struct{}
	feeds     feed.Collection
	log       *slog.Logger
}

func New(
	st *store.Store,
	fetcher *feed.Fetcher,
	topology Topology,
	publisher ItemPublisher,
	interval time.Duration,
	log *slog.Logger,
) *Updater {
	return &Updater{
		store:     st,
		fetcher:   fetcher,
		topology:  topology,
		publisher: publisher,
		interval:  interval,
		mailbox:   make(chan envelope, mailboxCap),
		ticks:     make(chan struct{}, 1),
		log:       log,
	}
}

// Send delivers a command to the actor and blocks until it is handled.
// The returned error is the command's outcome, not a transport failure,
// unless the context ends first.
func (u *Updater) Send(ctx context.Context, cmd Command) error {
	reply := make(chan error, 1)

	select {
	case u.mailbox <- envelope{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loads the collection, converges the channel topology, and enters the
// actor loop. It returns after a Shutdown command or when ctx ends; either
// way a final persist runs first.
func (u *Updater) Run(ctx context.Context) error {
	feeds, err := u.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feed collection: %w", err)
	}
	u.feeds = feeds

	u.log.InfoContext(ctx, "Feed collection loaded",
		"count", len(u.feeds),
		"path", u.store.Path())

	u.topology.Reconcile(ctx, u.feeds)
	u.pollCycle(ctx)

	scheduler := cron.New()
	if _, err = scheduler.AddFunc(fmt.Sprintf("@every %s", u.interval), u.enqueueTick); err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	for {
		select {
		case <-ctx.Done():
			u.persist(context.WithoutCancel(ctx))

			return ctx.Err()
		case <-u.ticks:
			u.pollCycle(ctx)
		case env := <-u.mailbox:
			err := u.handle(ctx, env.cmd)
			env.reply <- err

			if _, done := env.cmd.(Shutdown); done {
				return nil
			}
		}
	}
}

// enqueueTick coalesces: a tick that fires while one is already pending is
// dropped rather than queued.
func (u *Updater) enqueueTick() {
	select {
	case u.ticks <- struct{}{}:
	default:
	}
}

func (u *Updater) handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case AddFeed:
		return u.addFeed(ctx, c.Feed)
	case EditFeed:
		return u.editFeed(ctx, c)
	case RemoveFeed:
		return u.removeFeed(ctx, c.Target)
	case ReloadFeed:
		return u.reloadFeed(ctx, c.Target)
	case MarkRead:
		return u.markItem(ctx, c.ChannelName, c.ItemLink, true)
	case MarkUnread:
		return u.markItem(ctx, c.ChannelName, c.ItemLink, false)
	case *ExportOPML:
		return u.exportOPML(c)
	case ImportOPML:
		return u.importOPML(ctx, c.Data)
	case Shutdown:
		u.persist(ctx)

		return nil
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}

func (u *Updater) addFeed(ctx context.Context, f feed.Feed) error {
	if u.feeds.HasURL(f.URL()) {
		u.log.WarnContext(ctx, "Feed is already subscribed",
			"url", f.URL(),
			"title", f.Title())

		return fmt.Errorf("%w: %s", ErrFeedExists, f.URL())
	}

	u.feeds = append(u.feeds, f)
	added := &u.feeds[len(u.feeds)-1]

	u.topology.EnsureFeeds(ctx, []feed.Feed{*added})
	u.publishAll(ctx, added)
	u.persist(ctx)

	u.log.InfoContext(ctx, "Feed subscribed",
		"url", added.URL(),
		"title", added.Title())

	return nil
}

func (u *Updater) editFeed(ctx context.Context, cmd EditFeed) error {
	index := u.resolve(cmd.Target)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, cmd.Target)
	}
	f := &u.feeds[index]

	if cmd.URL != nil && *cmd.URL != f.URL() && u.feeds.HasURL(*cmd.URL) {
		return fmt.Errorf("%w: %s", ErrFeedExists, *cmd.URL)
	}

	renamed := cmd.Title != nil &&
		discord.CanonicalName(*cmd.Title) != discord.CanonicalName(f.Title())
	if renamed {
		// The channel is keyed on the title, so a rename is a teardown
		// plus a fresh create under the new name.
		u.topology.RemoveFeed(ctx, f)
	}

	if cmd.URL != nil {
		f.SetURL(*cmd.URL)
	}
	if cmd.Title != nil {
		f.SetTitle(*cmd.Title)
	}
	if cmd.Category != nil {
		f.SetServerCategory(*cmd.Category)
	}

	u.topology.Reconcile(ctx, u.feeds)
	u.persist(ctx)

	u.log.InfoContext(ctx, "Feed edited",
		"url", f.URL(),
		"title", f.Title())

	return nil
}

func (u *Updater) removeFeed(ctx context.Context, target string) error {
	index := u.resolve(target)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, target)
	}

	removed := u.feeds[index]
	u.topology.RemoveFeed(ctx, &removed)
	u.feeds = append(u.feeds[:index], u.feeds[index+1:]...)
	u.persist(ctx)

	u.log.InfoContext(ctx, "Feed unsubscribed",
		"url", removed.URL(),
		"title", removed.Title())

	return nil
}

func (u *Updater) reloadFeed(ctx context.Context, target string) error {
	if target == "" {
		u.refresh(ctx, lo.RangeFrom(0, len(u.feeds)))

		return nil
	}

	index := u.resolve(target)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, target)
	}
	u.refresh(ctx, []int{index})

	return nil
}

func (u *Updater) markItem(ctx context.Context, channelName, link string, read bool) error {
	name := strings.TrimPrefix(channelName, discord.ReadPrefix)

	index := -1
	for i := range u.feeds {
		if discord.CanonicalName(u.feeds[i].Title()) == name {
			index = i

			break
		}
	}
	if index < 0 {
		u.log.WarnContext(ctx, "No feed matches channel",
			"channelName", channelName)

		return fmt.Errorf("%w: channel %s", ErrFeedNotFound, channelName)
	}

	if !u.feeds[index].MarkItem(link, read) {
		u.log.WarnContext(ctx, "No item matches link",
			"channelName", channelName,
			"link", link)

		return fmt.Errorf("%w: %s", ErrItemNotFound, link)
	}

	u.persist(ctx)

	return nil
}

func (u *Updater) exportOPML(cmd *ExportOPML) error {
	title := cmd.Title
	if title == "" {
		title = defaultExportTitle
	}

	data, err := opml.FromFeeds(title, u.feeds).Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize subscriptions: %w", err)
	}
	cmd.Result = data

	return nil
}

func (u *Updater) importOPML(ctx context.Context, data []byte) error {
	document, err := opml.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse OPML document: %w", err)
	}

	entries := lo.Filter(document.Entries(), func(entry opml.Entry, _ int) bool {
		return !u.feeds.HasURL(entry.URL)
	})
	if len(entries) == 0 {
		u.log.InfoContext(ctx, "OPML import carries no unknown feeds")

		return nil
	}

	fetched := make([]feed.Feed, len(entries))
	failures := make([]error, len(entries))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			fetched[i], failures[i] = u.fetcher.Fetch(groupCtx, entry.URL, entry.Title, "")

			return nil
		})
	}
	_ = group.Wait()

	var added []int
	for i, entry := range entries {
		if failures[i] != nil {
			u.log.WarnContext(ctx, "Skipping unfetchable OPML entry",
				"error", failures[i],
				"url", entry.URL)

			continue
		}
		if u.feeds.HasURL(fetched[i].URL()) {
			continue
		}

		u.feeds = append(u.feeds, fetched[i])
		added = append(added, len(u.feeds)-1)
	}
	if len(added) == 0 {
		return nil
	}

	u.topology.EnsureFeeds(ctx, lo.Map(added, func(index int, _ int) feed.Feed {
		return u.feeds[index]
	}))
	for _, index := range added {
		u.publishAll(ctx, &u.feeds[index])
	}
	u.persist(ctx)

	u.log.InfoContext(ctx, "OPML import finished",
		"imported", len(added),
		"skipped", len(entries)-len(added))

	return nil
}

// resolve maps a user-supplied identifier to a collection index: exact
// subscription URL first, then the canonical channel name of the title.
func (u *Updater) resolve(target string) int {
	if index := u.feeds.IndexOfURL(target); index >= 0 {
		return index
	}

	name := discord.CanonicalName(target)
	for i := range u.feeds {
		if discord.CanonicalName(u.feeds[i].Title()) == name {
			return i
		}
	}

	return -1
}

// pollCycle fetches every update-eligible feed.
func (u *Updater) pollCycle(ctx context.Context) {
	now := time.Now()

	var due []int
	for i := range u.feeds {
		if u.feeds[i].ShouldUpdate(now) {
			due = append(due, i)
		}
	}

	u.refresh(ctx, due)
}

type fetchResult struct {
	feed feed.Feed
	err  error
}

// refresh fetches the given feeds concurrently, then folds the results into
// the collection one at a time. A failed fetch or a mismatched diff skips
// that feed only.
func (u *Updater) refresh(ctx context.Context, indexes []int) {
	if len(indexes) == 0 {
		return
	}

	results := make([]fetchResult, len(indexes))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, index := range indexes {
		i := i
		f := &u.feeds[index]
		group.Go(func() error {
			fetched, err := u.fetcher.Fetch(groupCtx, f.URL(), f.Title(), f.ServerCategory())
			results[i] = fetchResult{feed: fetched, err: err}

			return nil
		})
	}
	_ = group.Wait()

	now := time.Now()
	changed := false

	for i, index := range indexes {
		stored := &u.feeds[index]
		if results[i].err != nil {
			u.log.ErrorContext(ctx, "Failed to fetch feed",
				"error", results[i].err,
				"url", stored.URL())

			continue
		}

		items, err := feed.Merge(stored, results[i].feed, now)
		if err != nil {
			u.log.ErrorContext(ctx, "Failed to merge fetched feed",
				"error", err,
				"url", stored.URL())

			continue
		}
		changed = true

		for _, item := range items {
			if err := u.publisher.Publish(ctx, item); err != nil {
				u.log.ErrorContext(ctx, "Failed to publish item",
					"error", err,
					"feedTitle", item.FeedTitle)
			}
		}
	}

	if changed {
		u.persist(ctx)
	}
}

// publishAll pushes every stored item of a feed through the publisher,
// which routes read items to the companion thread.
func (u *Updater) publishAll(ctx context.Context, f *feed.Feed) {
	var items []feed.NewItem
	switch f.Kind {
	case feed.KindRSS:
		for i := range f.RSS.Items {
			items = append(items, feed.NewItem{FeedTitle: f.Title(), RSS: &f.RSS.Items[i]})
		}
	case feed.KindAtom:
		for i := range f.Atom.Entries {
			items = append(items, feed.NewItem{FeedTitle: f.Title(), Atom: &f.Atom.Entries[i]})
		}
	}

	for _, item := range items {
		if err := u.publisher.Publish(ctx, item); err != nil {
			u.log.ErrorContext(ctx, "Failed to publish item",
				"error", err,
				"feedTitle", item.FeedTitle)
		}
	}
}

func (u *Updater) persist(ctx context.Context) {
	if err := u.store.Save(ctx, u.feeds); err != nil {
		u.log.ErrorContext(ctx, "Failed to persist feed collection, recent changes are at risk",
			"error", err,
			"path", u.store.Path())
	}
}
