package feed

import (
	"errors"
	"fmt"
	"time"
)

// ErrKindMismatch means the stored feed and the fetched snapshot disagree on
// the syndication format. The update is skipped; other feeds are unaffected.
var ErrKindMismatch = errors.New("stored and fetched feed kinds differ")

// NewItem points at an item that Merge appended to the stored feed. Exactly
// one of RSS or Atom is set, matching the owning feed's kind.
type NewItem struct {
	FeedTitle string
	RSS       *RSSItem
	Atom      *AtomEntry
}

// Merge folds a freshly fetched snapshot into the stored feed. Items whose
// identity (RSS link, Atom entry ID) is already stored are left untouched so
// their read markers survive; unseen items are appended in fetched order and
// returned for publishing. Non-item metadata is replaced wholesale from the
// snapshot, except the title, which only an explicit edit may change.
// LastUpdated is set to now whether or not anything was new.
func Merge(stored *Feed, fetched Feed, now time.Time) ([]NewItem, error) {
	if stored.URL() != fetched.URL() {
		return nil, fmt.Errorf("merge of %q against %q", fetched.URL(), stored.URL())
	}
	if stored.Kind != fetched.Kind {
		return nil, fmt.Errorf("%w: stored %s, fetched %s", ErrKindMismatch, stored.Kind, fetched.Kind)
	}

	var appended []NewItem
	switch stored.Kind {
	case KindRSS:
		appended = mergeRSS(stored.RSS, fetched.RSS)
	case KindAtom:
		appended = mergeAtom(stored.Atom, fetched.Atom)
	}

	stored.SetLastUpdated(now)

	return appended, nil
}

func mergeRSS(stored *RSSChannel, fetched *RSSChannel) []NewItem {
	known := make(map[string]struct{}, len(stored.Items))
	for _, item := range stored.Items {
		known[item.Link] = struct{}{}
	}

	var appended []NewItem
	for _, item := range fetched.Items {
		if _, ok := known[item.Link]; ok {
			continue
		}

		stored.Items = append(stored.Items, item)
		published := item
		appended = append(appended, NewItem{
			FeedTitle: stored.Title,
			RSS:       &published,
		})
	}

	stored.Description = fetched.Description
	stored.Link = fetched.Link
	stored.Copyright = fetched.Copyright
	stored.ManagingEditor = fetched.ManagingEditor
	stored.WebMaster = fetched.WebMaster
	stored.PubDate = fetched.PubDate
	stored.Categories = fetched.Categories
	stored.Docs = fetched.Docs
	stored.TTL = fetched.TTL
	stored.Image = fetched.Image
	stored.SkipHours = fetched.SkipHours
	stored.SkipDays = fetched.SkipDays

	return appended
}

func mergeAtom(stored *AtomFeed, fetched *AtomFeed) []NewItem {
	known := make(map[string]struct{}, len(stored.Entries))
	for _, entry := range stored.Entries {
		known[entry.ID] = struct{}{}
	}

	var appended []NewItem
	for _, entry := range fetched.Entries {
		if _, ok := known[entry.ID]; ok {
			continue
		}

		stored.Entries = append(stored.Entries, entry)
		published := entry
		appended = append(appended, NewItem{
			FeedTitle: stored.Title,
			Atom:      &published,
		})
	}

	stored.ID = fetched.ID
	stored.Subtitle = fetched.Subtitle
	stored.Updated = fetched.Updated
	stored.Author = fetched.Author
	stored.Links = fetched.Links
	stored.Categories = fetched.Categories
	stored.Icon = fetched.Icon
	stored.Logo = fetched.Logo
	stored.Rights = fetched.Rights
	stored.TTL = fetched.TTL
	stored.SkipHours = fetched.SkipHours
	stored.SkipDays = fetched.SkipDays

	return appended
}
