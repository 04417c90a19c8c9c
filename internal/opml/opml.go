// Package opml maps the feed collection to and from OPML 2.0 documents for
// bulk import/export.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"feedwarden/internal/feed"
)

// Document is the root of an OPML document.
type Document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title        string `xml:"title,omitempty"`
	DateCreated  string `xml:"dateCreated,omitempty"`
	DateModified string `xml:"dateModified,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a single outline element: a feed subscription, or a grouping
// that nests further outlines.
type Outline struct {
	Text        string    `xml:"text,attr"`
	Type        string    `xml:"type,attr,omitempty"`
	XMLURL      string    `xml:"xmlUrl,attr,omitempty"`
	Title       string    `xml:"title,attr,omitempty"`
	Description string    `xml:"description,attr,omitempty"`
	HTMLURL     string    `xml:"htmlUrl,attr,omitempty"`
	Outlines    []Outline `xml:"outline,omitempty"`
}

// Entry is a flattened feed outline: a candidate subscription.
type Entry struct {
	Title       string
	URL         string
	Kind        feed.Kind
	Description string
}

func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode opml: %w", err)
	}

	return &doc, nil
}

// Entries flattens the outline tree into candidate subscriptions. Grouping
// outlines contribute their children; outlines without an xmlUrl are not
// feeds and are skipped.
func (d *Document) Entries() []Entry {
	var entries []Entry
	var walk func(outlines []Outline)
	walk = func(outlines []Outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}

				kind := feed.KindRSS
				if o.Type == "atom" {
					kind = feed.KindAtom
				}

				entries = append(entries, Entry{
					Title:       title,
					URL:         o.XMLURL,
					Kind:        kind,
					Description: o.Description,
				})
			}

			walk(o.Outlines)
		}
	}
	walk(d.Body.Outlines)

	return entries
}

// FromFeeds builds an exportable document from the stored collection.
func FromFeeds(title string, feeds []feed.Feed) *Document {
	now := time.Now().UTC().Format(time.RFC1123Z)

	doc := &Document{
		Version: "2.0",
		Head: Head{
			Title:        title,
			DateCreated:  now,
			DateModified: now,
		},
	}

	for i := range feeds {
		doc.Body.Outlines = append(doc.Body.Outlines, outlineOf(&feeds[i]))
	}

	return doc
}

func outlineOf(f *feed.Feed) Outline {
	outline := Outline{
		Text:        f.Title(),
		Title:       f.Title(),
		Type:        string(f.Kind),
		XMLURL:      f.URL(),
		Description: f.Description(),
	}

	if f.Kind == feed.KindAtom {
		for _, link := range f.Atom.Links {
			if link.Rel == "" || link.Rel == "alternate" {
				outline.HTMLURL = link.Href
				break
			}
		}
	} else if f.RSS != nil {
		outline.HTMLURL = f.RSS.Link
	}

	return outline
}

// Marshal renders the document with the standard XML header.
func (d *Document) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal opml: %w", err)
	}

	return append([]byte(xml.Header), body...), nil
}
