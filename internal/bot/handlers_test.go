package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwarden/internal/updater"
)

func TestParseEdit(t *testing.T) {
	tests := []struct {
		name string
		rest string
		want updater.EditFeed
		ok   bool
	}{
		{
			"Single patch",
			"hacker-news category=tech",
			updater.EditFeed{Target: "hacker-news", Category: strPtr("tech")},
			true,
		},
		{
			"Multi-word target and value",
			"Hacker News title=Orange Site category=tech",
			updater.EditFeed{
				Target:   "Hacker News",
				Title:    strPtr("Orange Site"),
				Category: strPtr("tech"),
			},
			true,
		},
		{
			"URL patch",
			"hacker-news url=https://example.com/hn.xml",
			updater.EditFeed{
				Target: "hacker-news",
				URL:    strPtr("https://example.com/hn.xml"),
			},
			true,
		},
		{
			"Empty category clears the label",
			"hacker-news category=",
			updater.EditFeed{Target: "hacker-news", Category: strPtr("")},
			true,
		},
		{
			"No patches",
			"hacker-news",
			updater.EditFeed{},
			false,
		},
		{
			"No target",
			"title=Orange Site",
			updater.EditFeed{},
			false,
		},
		{
			"Empty input",
			"",
			updater.EditFeed{},
			false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := parseEdit(test.rest)

			require.Equal(t, test.ok, ok)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "That feed is already subscribed.", userMessage(updater.ErrFeedExists))
	assert.Equal(t, "No subscribed feed matches that.", userMessage(updater.ErrFeedNotFound))
	assert.NotEmpty(t, userMessage(assert.AnError))
}

func strPtr(s string) *string {
	return &s
}
