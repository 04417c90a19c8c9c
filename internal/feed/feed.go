// Package feed holds the subscribed-feed model: a tagged union over the two
// syndication formats, the update-eligibility policy, and the diff/merge
// engine that folds a freshly fetched snapshot into the stored copy.
package feed

import (
	"strings"
	"time"
)

type Kind string

const (
	KindRSS  Kind = "rss"
	KindAtom Kind = "atom"
)

// Feed is a tagged union: exactly one of RSS or Atom is set, selected by
// Kind. Operations switch on Kind exhaustively instead of hiding the two
// formats behind an interface.
type Feed struct {
	Kind Kind        `json:"kind"`
	RSS  *RSSChannel `json:"rss,omitempty"`
	Atom *AtomFeed   `json:"atom,omitempty"`
}

type RSSChannel struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	URL            string         `json:"url"`
	Link           string         `json:"link,omitempty"`
	Copyright      string         `json:"copyright,omitempty"`
	ManagingEditor string         `json:"managingEditor,omitempty"`
	WebMaster      string         `json:"webMaster,omitempty"`
	PubDate        *time.Time     `json:"pubDate,omitempty"`
	Categories     []string       `json:"categories,omitempty"`
	Docs           string         `json:"docs,omitempty"`
	TTL            int            `json:"ttl,omitempty"`
	Image          string         `json:"image,omitempty"`
	SkipHours      []int          `json:"skipHours,omitempty"`
	SkipDays       []time.Weekday `json:"skipDays,omitempty"`
	Items          []RSSItem      `json:"items"`
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	ServerCategory string         `json:"serverCategory,omitempty"`
}

type RSSItem struct {
	Title       string      `json:"title,omitempty"`
	Link        string      `json:"link"`
	Description string      `json:"description"`
	Published   *time.Time  `json:"published,omitempty"`
	Author      string      `json:"author,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Comments    string      `json:"comments,omitempty"`
	Enclosure   *Enclosure  `json:"enclosure,omitempty"`
	GUID        string      `json:"guid,omitempty"`
	Source      *ItemSource `json:"source,omitempty"`
	Read        bool        `json:"read,omitempty"`
}

type Enclosure struct {
	URL    string `json:"url"`
	Length int64  `json:"length,omitempty"`
	Type   string `json:"type,omitempty"`
}

type ItemSource struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

type AtomFeed struct {
	ID             string         `json:"id,omitempty"`
	Title          string         `json:"title"`
	Subtitle       string         `json:"subtitle,omitempty"`
	URL            string         `json:"url"`
	Updated        *time.Time     `json:"updated,omitempty"`
	Author         *AtomPerson    `json:"author,omitempty"`
	Links          []AtomLink     `json:"links,omitempty"`
	Categories     []string       `json:"categories,omitempty"`
	Icon           string         `json:"icon,omitempty"`
	Logo           string         `json:"logo,omitempty"`
	Rights         string         `json:"rights,omitempty"`
	Entries        []AtomEntry    `json:"entries"`
	TTL            int            `json:"ttl,omitempty"`
	SkipHours      []int          `json:"skipHours,omitempty"`
	SkipDays       []time.Weekday `json:"skipDays,omitempty"`
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	ServerCategory string         `json:"serverCategory,omitempty"`
}

type AtomPerson struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URI   string `json:"uri,omitempty"`
}

type AtomLink struct {
	Href  string `json:"href"`
	Rel   string `json:"rel,omitempty"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type AtomEntry struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Links     []AtomLink  `json:"links,omitempty"`
	Updated   *time.Time  `json:"updated,omitempty"`
	Published *time.Time  `json:"published,omitempty"`
	Author    *AtomPerson `json:"author,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	Rights    string      `json:"rights,omitempty"`
	Enclosure *Enclosure  `json:"enclosure,omitempty"`
	Read      bool        `json:"read,omitempty"`
}

func (f *Feed) Title() string {
	switch f.Kind {
	case KindRSS:
		return f.RSS.Title
	case KindAtom:
		return f.Atom.Title
	}
	return ""
}

func (f *Feed) SetTitle(title string) {
	switch f.Kind {
	case KindRSS:
		f.RSS.Title = title
	case KindAtom:
		f.Atom.Title = title
	}
}

// URL is the subscription URL, the feed's identity within the collection.
func (f *Feed) URL() string {
	switch f.Kind {
	case KindRSS:
		return f.RSS.URL
	case KindAtom:
		return f.Atom.URL
	}
	return ""
}

func (f *Feed) SetURL(url string) {
	switch f.Kind {
	case KindRSS:
		f.RSS.URL = url
	case KindAtom:
		f.Atom.URL = url
	}
}

func (f *Feed) Description() string {
	switch f.Kind {
	case KindRSS:
		return f.RSS.Description
	case KindAtom:
		return f.Atom.Subtitle
	}
	return ""
}

// ServerCategory is the optional category label the feed's channel is
// parented to on the server.
func (f *Feed) ServerCategory() string {
	switch f.Kind {
	case KindRSS:
		return f.RSS.ServerCategory
	case KindAtom:
		return f.Atom.ServerCategory
	}
	return ""
}

func (f *Feed) SetServerCategory(category string) {
	switch f.Kind {
	case KindRSS:
		f.RSS.ServerCategory = category
	case KindAtom:
		f.Atom.ServerCategory = category
	}
}

func (f *Feed) LastUpdated() *time.Time {
	switch f.Kind {
	case KindRSS:
		return f.RSS.LastUpdated
	case KindAtom:
		return f.Atom.LastUpdated
	}
	return nil
}

func (f *Feed) SetLastUpdated(t time.Time) {
	switch f.Kind {
	case KindRSS:
		f.RSS.LastUpdated = &t
	case KindAtom:
		f.Atom.LastUpdated = &t
	}
}

func (f *Feed) ttlMinutes() int {
	switch f.Kind {
	case KindRSS:
		return f.RSS.TTL
	case KindAtom:
		return f.Atom.TTL
	}
	return 0
}

func (f *Feed) skipWindows() ([]time.Weekday, []int) {
	switch f.Kind {
	case KindRSS:
		return f.RSS.SkipDays, f.RSS.SkipHours
	case KindAtom:
		return f.Atom.SkipDays, f.Atom.SkipHours
	}
	return nil, nil
}

// ShouldUpdate reports whether the feed is due for a fetch at now.
// A feed never fetched is always due. Skip-day and skip-hour windows win
// over everything else; a TTL postpones refetching until the stored copy is
// at least TTL minutes old.
func (f *Feed) ShouldUpdate(now time.Time) bool {
	skipDays, skipHours := f.skipWindows()
	for _, day := range skipDays {
		if now.Weekday() == day {
			return false
		}
	}
	for _, hour := range skipHours {
		if now.Hour() == hour {
			return false
		}
	}

	last := f.LastUpdated()
	if last == nil {
		return true
	}

	if ttl := f.ttlMinutes(); ttl > 0 {
		return now.Sub(*last) >= time.Duration(ttl)*time.Minute
	}

	return true
}

// LinkHref resolves the entry's canonical link: the first link without a rel
// or with rel="self", falling back to the entry ID.
func (e *AtomEntry) LinkHref() string {
	for _, link := range e.Links {
		if link.Rel == "" || link.Rel == "self" {
			return link.Href
		}
	}

	return e.ID
}

// EnclosureImage returns the URL of an attached image, if any.
func (e *AtomEntry) EnclosureImage() string {
	for _, link := range e.Links {
		if link.Rel == "enclosure" && IsImageMIMEType(link.Type) {
			return link.Href
		}
	}

	if e.Enclosure != nil && IsImageMIMEType(e.Enclosure.Type) {
		return e.Enclosure.URL
	}

	return ""
}

func IsImageMIMEType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// MarkItem flips the read marker on the item identified by link. It reports
// whether a matching item was found.
func (f *Feed) MarkItem(link string, read bool) bool {
	switch f.Kind {
	case KindRSS:
		for i := range f.RSS.Items {
			if f.RSS.Items[i].Link == link {
				f.RSS.Items[i].Read = read

				return true
			}
		}
	case KindAtom:
		for i := range f.Atom.Entries {
			if f.Atom.Entries[i].LinkHref() == link {
				f.Atom.Entries[i].Read = read

				return true
			}
		}
	}

	return false
}
