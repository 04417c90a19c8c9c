package opml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwarden/internal/feed"
)

const nestedDocument = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head>
    <title>Subscriptions</title>
  </head>
  <body>
    <outline text="Tech">
      <outline text="Hacker News" type="rss" xmlUrl="https://example.com/hn.xml" htmlUrl="https://example.com/"/>
      <outline text="Example Videos" type="atom" xmlUrl="https://example.com/videos.xml"/>
    </outline>
    <outline text="Lonely Feed" xmlUrl="https://example.com/lonely.xml"/>
    <outline text="Not a feed"/>
  </body>
</opml>`

func TestEntriesFlattensNestedOutlines(t *testing.T) {
	document, err := Parse(strings.NewReader(nestedDocument))
	require.NoError(t, err)

	entries := document.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, "Hacker News", entries[0].Title)
	assert.Equal(t, "https://example.com/hn.xml", entries[0].URL)
	assert.Equal(t, feed.KindRSS, entries[0].Kind)

	assert.Equal(t, feed.KindAtom, entries[1].Kind)

	assert.Equal(t, "Lonely Feed", entries[2].Title)
	assert.Equal(t, feed.KindRSS, entries[2].Kind, "missing type defaults to rss")
}

func TestRoundTrip(t *testing.T) {
	feeds := []feed.Feed{
		{Kind: feed.KindRSS, RSS: &feed.RSSChannel{
			Title: "Hacker News",
			URL:   "https://example.com/hn.xml",
			Link:  "https://example.com/",
		}},
		{Kind: feed.KindAtom, Atom: &feed.AtomFeed{
			Title: "Example Videos",
			URL:   "https://example.com/videos.xml",
			Links: []feed.AtomLink{{Href: "https://example.com/videos", Rel: "alternate"}},
		}},
	}

	data, err := FromFeeds("Subscriptions", feeds).Marshal()
	require.NoError(t, err)

	parsed, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "Subscriptions", parsed.Head.Title)

	entries := parsed.Entries()
	require.Len(t, entries, len(feeds))
	for i, entry := range entries {
		assert.Equal(t, feeds[i].URL(), entry.URL)
		assert.Equal(t, feeds[i].Title(), entry.Title)
		assert.Equal(t, feeds[i].Kind, entry.Kind)
	}
}

func TestMarshalCarriesXMLHeader(t *testing.T) {
	data, err := FromFeeds("Subscriptions", nil).Marshal()
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("<?xml")))
}
