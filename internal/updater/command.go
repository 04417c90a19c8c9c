package updater

import (
	"errors"

	"feedwarden/internal/feed"
)

var (
	ErrFeedExists   = errors.New("feed is already subscribed")
	ErrFeedNotFound = errors.New("no such feed")
	ErrItemNotFound = errors.New("no such item")
)

// Command is the tagged union of everything the actor can be asked to do.
// Each command travels through the mailbox with a one-shot error reply.
type Command interface {
	isCommand()
}

// AddFeed appends an already-fetched feed to the collection and builds its
// channel presence.
type AddFeed struct {
	Feed feed.Feed
}

// EditFeed patches a subscribed feed. Target resolves by exact subscription
// URL or by the canonical channel name of the title. Nil fields are left
// unchanged.
type EditFeed struct {
	Target   string
	URL      *string
	Title    *string
	Category *string
}

// RemoveFeed unsubscribes a feed and tears down its channels.
type RemoveFeed struct {
	Target string
}

// ReloadFeed forces a fetch and diff regardless of update eligibility.
// An empty Target reloads every feed.
type ReloadFeed struct {
	Target string
}

// MarkRead flips an item's read marker on. The item is addressed by the
// channel it was published to and its link.
type MarkRead struct {
	ChannelName string
	ItemLink    string
}

// MarkUnread flips an item's read marker off.
type MarkUnread struct {
	ChannelName string
	ItemLink    string
}

// ExportOPML serializes the collection. The actor fills Result before
// replying, so the caller may read it once Send returns.
type ExportOPML struct {
	Title  string
	Result []byte
}

// ImportOPML subscribes to every unknown feed listed in an OPML document.
type ImportOPML struct {
	Data []byte
}

// Shutdown persists the collection and stops the actor loop.
type Shutdown struct{}

func (AddFeed) isCommand()     {}
func (EditFeed) isCommand()    {}
func (RemoveFeed) isCommand()  {}
func (ReloadFeed) isCommand()  {}
func (MarkRead) isCommand()    {}
func (MarkUnread) isCommand()  {}
func (*ExportOPML) isCommand() {}
func (ImportOPML) isCommand()  {}
func (Shutdown) isCommand()    {}
