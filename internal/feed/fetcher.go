package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"golang.org/x/time/rate"
)

const (
	fetchRatePerSecond = 4
	fetchBurst         = 8

	youtubeEntryIDPrefix = "yt:video:"
)

// Fetcher retrieves and parses a single feed document. It is safe for
// concurrent use; poll cycles fan out one fetch per due feed.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *slog.Logger
}

func NewFetcher(timeout time.Duration, userAgent string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(fetchRatePerSecond), fetchBurst),
		userAgent: userAgent,
		log:       log,
	}
}

// Fetch downloads the document at rawURL, detects its format, and converts
// it into a Feed. title and category, when non-empty, override whatever the
// document declares. http, https, and file schemes are supported.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, title, category string) (Feed, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Feed{}, fmt.Errorf("failed to parse feed URL %q: %w", rawURL, err)
	}

	var body []byte
	switch parsed.Scheme {
	case "http", "https":
		body, err = f.download(ctx, parsed.String())
	case "file":
		body, err = os.ReadFile(parsed.Path)
	default:
		return Feed{}, fmt.Errorf("unsupported URL scheme %q in %q", parsed.Scheme, rawURL)
	}
	if err != nil {
		return Feed{}, fmt.Errorf("failed to read feed %q: %w", rawURL, err)
	}

	feed, err := parseDocument(parsed.String(), body)
	if err != nil {
		return Feed{}, err
	}

	if title != "" {
		feed.SetTitle(title)
	}
	if category != "" {
		feed.SetServerCategory(category)
	}

	return feed, nil
}

func (f *Fetcher) download(ctx context.Context, fetchURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for fetch limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"url", fetchURL)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func parseDocument(subscriptionURL string, body []byte) (Feed, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		parser := &atom.Parser{}
		parsed, err := parser.Parse(bytes.NewReader(body))
		if err != nil {
			return Feed{}, fmt.Errorf("failed to parse atom feed %q: %w", subscriptionURL, err)
		}

		return convertAtom(subscriptionURL, parsed), nil

	case gofeed.FeedTypeRSS:
		parser := &rss.Parser{}
		parsed, err := parser.Parse(bytes.NewReader(body))
		if err != nil {
			return Feed{}, fmt.Errorf("failed to parse rss feed %q: %w", subscriptionURL, err)
		}

		return convertRSS(subscriptionURL, parsed), nil

	default:
		return Feed{}, fmt.Errorf("document at %q is neither RSS nor Atom", subscriptionURL)
	}
}

func convertRSS(subscriptionURL string, parsed *rss.Feed) Feed {
	channel := &RSSChannel{
		Title:          parsed.Title,
		Description:    parsed.Description,
		URL:            subscriptionURL,
		Link:           parsed.Link,
		Copyright:      parsed.Copyright,
		ManagingEditor: parsed.ManagingEditor,
		WebMaster:      parsed.WebMaster,
		PubDate:        parsed.PubDateParsed,
		Docs:           parsed.Docs,
		SkipHours:      parseSkipHours(parsed.SkipHours),
		SkipDays:       parseSkipDays(parsed.SkipDays),
	}

	if ttl, err := strconv.Atoi(strings.TrimSpace(parsed.TTL)); err == nil {
		channel.TTL = ttl
	}
	if parsed.Image != nil {
		channel.Image = parsed.Image.URL
	}
	for _, category := range parsed.Categories {
		channel.Categories = append(channel.Categories, category.Value)
	}

	for _, item := range parsed.Items {
		channel.Items = append(channel.Items, convertRSSItem(item))
	}

	return Feed{Kind: KindRSS, RSS: channel}
}

func convertRSSItem(item *rss.Item) RSSItem {
	converted := RSSItem{
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		Published:   item.PubDateParsed,
		Author:      item.Author,
		Comments:    item.Comments,
	}

	for _, category := range item.Categories {
		converted.Categories = append(converted.Categories, category.Value)
	}
	if item.GUID != nil {
		converted.GUID = item.GUID.Value
	}
	if item.Enclosure != nil {
		length, _ := strconv.ParseInt(item.Enclosure.Length, 10, 64)
		converted.Enclosure = &Enclosure{
			URL:    item.Enclosure.URL,
			Length: length,
			Type:   item.Enclosure.Type,
		}
	}
	if item.Source != nil {
		converted.Source = &ItemSource{
			Title: item.Source.Title,
			URL:   item.Source.URL,
		}
	}

	return converted
}

func convertAtom(subscriptionURL string, parsed *atom.Feed) Feed {
	converted := &AtomFeed{
		ID:       parsed.ID,
		Title:    parsed.Title,
		Subtitle: parsed.Subtitle,
		URL:      subscriptionURL,
		Updated:  parsed.UpdatedParsed,
		Icon:     parsed.Icon,
		Logo:     parsed.Logo,
		Rights:   parsed.Rights,
	}

	if len(parsed.Authors) > 0 {
		converted.Author = convertAtomPerson(parsed.Authors[0])
	}
	for _, link := range parsed.Links {
		converted.Links = append(converted.Links, convertAtomLink(link))
	}
	for _, category := range parsed.Categories {
		converted.Categories = append(converted.Categories, category.Term)
	}

	for _, entry := range parsed.Entries {
		converted.Entries = append(converted.Entries, convertAtomEntry(entry))
	}

	return Feed{Kind: KindAtom, Atom: converted}
}

func convertAtomEntry(entry *atom.Entry) AtomEntry {
	converted := AtomEntry{
		ID:        NormalizeEntryID(entry.ID),
		Title:     entry.Title,
		Updated:   entry.UpdatedParsed,
		Published: entry.PublishedParsed,
		Summary:   entry.Summary,
		Rights:    entry.Rights,
	}

	if len(entry.Authors) > 0 {
		converted.Author = convertAtomPerson(entry.Authors[0])
	}
	for _, link := range entry.Links {
		converted.Links = append(converted.Links, convertAtomLink(link))
	}

	return converted
}

func convertAtomPerson(person *atom.Person) *AtomPerson {
	return &AtomPerson{
		Name:  person.Name,
		Email: person.Email,
		URI:   person.URI,
	}
}

func convertAtomLink(link *atom.Link) AtomLink {
	return AtomLink{
		Href:  link.Href,
		Rel:   link.Rel,
		Type:  link.Type,
		Title: link.Title,
	}
}

// NormalizeEntryID rewrites YouTube's feed-generator entry IDs to the watch
// URL so the ID doubles as a clickable identity.
func NormalizeEntryID(id string) string {
	if videoID, ok := strings.CutPrefix(id, youtubeEntryIDPrefix); ok {
		return "https://youtube.com/watch?v=" + videoID
	}

	return id
}

func parseSkipHours(raw []string) []int {
	var hours []int
	for _, value := range raw {
		if hour, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			hours = append(hours, ((hour % 24) + 24) % 24)
		}
	}

	return hours
}

func parseSkipDays(raw []string) []time.Weekday {
	names := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}

	var days []time.Weekday
	for _, value := range raw {
		if day, ok := names[strings.ToLower(strings.TrimSpace(value))]; ok {
			days = append(days, day)
		}
	}

	return days
}
