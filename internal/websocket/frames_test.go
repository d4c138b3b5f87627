package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"bsn-realtime/internal/events"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/stretchr/testify/require"
)

func TestID_AcceptsStringsAndIntegers(t *testing.T) {
	cases := map[string]ID{
		`"c1"`:   "c1",
		`" c1 "`: "c1",
		`42`:     "42",
		`"42"`:   "42",
		`-7`:     "-7",
	}
	for raw, want := range cases {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(raw), &id), raw)
		require.Equal(t, want, id, raw)
	}

	for _, raw := range []string{`4.2`, `true`, `{}`} {
		var id ID
		require.Error(t, json.Unmarshal([]byte(raw), &id), raw)
	}
}

func TestDecoder_Envelope(t *testing.T) {
	req := require.New(t)
	d := newDecoder()

	env, err := d.envelope([]byte(`{"type":"heartbeat","correlation_id":"abc"}`))
	req.NoError(err)
	req.Equal("heartbeat", env.Type)
	req.Equal("abc", env.CorrelationID)

	_, err = d.envelope([]byte(`[1,2`))
	req.ErrorIs(err, bsn_errors.ErrInvalidInput)

	env, err = d.envelope([]byte(`{"correlation_id":"abc"}`))
	req.ErrorIs(err, bsn_errors.ErrInvalidInput)
	req.Equal("abc", env.CorrelationID)

	_, err = d.envelope([]byte(fmt.Sprintf(`{"type":"x","correlation_id":%q}`, strings.Repeat("c", 129))))
	req.ErrorIs(err, bsn_errors.ErrInvalidInput)
}

func TestDecoder_Body(t *testing.T) {
	req := require.New(t)
	d := newDecoder()

	var chat chatCommand
	req.NoError(d.body([]byte(`{"type":"subscribe_chat","chat_id":7}`), &chat))
	req.Equal(ID("7"), chat.ChatID)

	req.ErrorIs(d.body([]byte(`{"type":"subscribe_chat"}`), &chatCommand{}), bsn_errors.ErrInvalidInput)
	req.ErrorIs(d.body([]byte(`{"chat_id":true}`), &chatCommand{}), bsn_errors.ErrInvalidInput)

	var feed subscribeFeedCommand
	req.NoError(d.body([]byte(`{"type":"subscribe_feed"}`), &feed))
	req.Empty(feed.FeedType)
	req.ErrorIs(d.body([]byte(`{"feed_type":"`+strings.Repeat("f", 33)+`"}`), &subscribeFeedCommand{}), bsn_errors.ErrInvalidInput)
}

func TestErrorFrame_HidesCause(t *testing.T) {
	frame := newError("c9", fmt.Errorf("pq: relation does not exist"))
	require.Equal(t, errorFrame{Type: FrameError, CorrelationID: "c9", Code: "internal", Message: "internal error"}, frame)

	frame = newError("", fmt.Errorf("wrap: %w", bsn_errors.ErrContentTooLarge))
	require.Equal(t, "invalid", frame.Code)
	require.Equal(t, bsn_errors.ErrContentTooLarge.Error(), frame.Message)
}

func TestAckFrame_EmptyResultIsObject(t *testing.T) {
	data, err := json.Marshal(newAck("c1", nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"ack","correlation_id":"c1","result":{}}`, string(data))
}

func TestFilters(t *testing.T) {
	req := require.New(t)
	f := newFilters()

	post := func(author, feedType string) events.FeedNewPost {
		return events.FeedNewPost{Post: events.Post{Author: events.UserRef{ID: author}, FeedType: feedType}}
	}

	req.True(f.allowFeed(post("bob", "trending")))
	req.Equal("all", f.setFeedType(""))
	req.Equal("following", f.setFeedType("following"))
	req.False(f.allowFeed(post("bob", "trending")))
	req.True(f.allowFeed(post("bob", "following")))
	req.True(f.allowFeed(post("bob", "")))

	keys, err := f.setFeedPreferences(map[string]json.RawMessage{
		"muted_authors": json.RawMessage(`["spam","spam",""]`),
		"theme":         json.RawMessage(`"dark"`),
	})
	req.NoError(err)
	req.ElementsMatch([]string{"muted_authors", "theme"}, keys)
	req.False(f.allowFeed(post("spam", "following")))

	_, err = f.setFeedPreferences(map[string]json.RawMessage{"muted_authors": json.RawMessage(`5`)})
	req.Error(err)
	req.False(f.allowFeed(post("spam", "following")), "failed update keeps previous filter")

	n := events.NotificationNew{Notification: events.Notification{Kind: "like"}}
	req.True(f.allowNotification(n))
	_, err = f.setNotificationPreferences(map[string]json.RawMessage{"muted_kinds": json.RawMessage(`["like"]`)})
	req.NoError(err)
	req.False(f.allowNotification(n))

	_, err = f.setNotificationPreferences(nil)
	req.NoError(err)
	req.True(f.allowNotification(n))
}
