package feed

import "github.com/samber/lo"

// Collection is the ordered set of subscribed feeds. Order only matters for
// display; the invariant is that no two feeds share a URL.
type Collection []Feed

func (c Collection) HasURL(url string) bool {
	return lo.SomeBy(c, func(f Feed) bool {
		return f.URL() == url
	})
}

// IndexOfURL returns the position of the feed with the given subscription
// URL, or -1.
func (c Collection) IndexOfURL(url string) int {
	_, idx, _ := lo.FindIndexOf(c, func(f Feed) bool {
		return f.URL() == url
	})

	return idx
}
