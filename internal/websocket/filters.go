package websocket

import (
	"encoding/json"
	"sync"

	"bsn-realtime/internal/events"

	"github.com/samber/lo"
)

const feedTypeAll = "all"

// filters is the per-connection relay filter set by subscribe_feed and the
// preference commands.
type filters struct {
	mu           sync.RWMutex
	feedType     string
	mutedAuthors map[string]struct{}
	mutedKinds   map[string]struct{}
	feedPrefs    map[string]json.RawMessage
	notifPrefs   map[string]json.RawMessage
}

func newFilters() *filters {
	return &filters{feedType: feedTypeAll}
}

func (f *filters) setFeedType(feedType string) string {
	if feedType == "" {
		feedType = feedTypeAll
	}
	f.mu.Lock()
	f.feedType = feedType
	f.mu.Unlock()
	return feedType
}

// setFeedPreferences stores prefs and applies the keys it understands.
func (f *filters) setFeedPreferences(prefs map[string]json.RawMessage) ([]string, error) {
	authors, err := stringList(prefs, "muted_authors")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.feedPrefs = prefs
	f.mutedAuthors = toSet(authors)
	f.mu.Unlock()
	return lo.Keys(prefs), nil
}

func (f *filters) setNotificationPreferences(prefs map[string]json.RawMessage) ([]string, error) {
	kinds, err := stringList(prefs, "muted_kinds")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.notifPrefs = prefs
	f.mutedKinds = toSet(kinds)
	f.mu.Unlock()
	return lo.Keys(prefs), nil
}

// allowFeed reports whether a feed.new_post should be relayed.
func (f *filters) allowFeed(p events.FeedNewPost) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.feedType != feedTypeAll && p.Post.FeedType != "" && p.Post.FeedType != f.feedType {
		return false
	}
	_, muted := f.mutedAuthors[p.Post.Author.ID]
	return !muted
}

func (f *filters) allowNotification(n events.NotificationNew) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, muted := f.mutedKinds[n.Notification.Kind]
	return !muted
}

func stringList(prefs map[string]json.RawMessage, key string) ([]string, error) {
	raw, ok := prefs[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return lo.Uniq(lo.Compact(list)), nil
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	return lo.SliceToMap(items, func(s string) (string, struct{}) { return s, struct{}{} })
}
