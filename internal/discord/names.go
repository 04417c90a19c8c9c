package discord

import (
	"regexp"
	"strings"
)

const maxChannelNameLen = 95

// ReadPrefix marks a feed's companion thread holding already-read items.
const ReadPrefix = "read-"

var (
	spaceRunRe   = regexp.MustCompile(`\s+`)
	disallowedRe = regexp.MustCompile(`[^a-z0-9_-]`)
)

// CanonicalName derives the channel slug for a feed title: lowercase,
// whitespace runs become "-", anything outside [a-z0-9_-] is stripped, and
// the result is capped at 95 characters. It is idempotent and doubles as
// the lookup key when commands refer to a feed by title.
func CanonicalName(title string) string {
	name := strings.ToLower(strings.TrimSpace(title))
	name = spaceRunRe.ReplaceAllString(name, "-")
	name = disallowedRe.ReplaceAllString(name, "")

	return Truncate(name, maxChannelNameLen)
}

// ReadChannelName names the companion thread for a feed title.
func ReadChannelName(title string) string {
	return ReadPrefix + CanonicalName(title)
}

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
