package events

import "time"

// Kind tags every event carried by the broker. The set is closed.
type Kind string

const (
	KindChatMessage     Kind = "chat.message"
	KindFeedNewPost     Kind = "feed.new_post"
	KindNotificationNew Kind = "notification.new"
)

func (k Kind) Valid() bool {
	switch k {
	case KindChatMessage, KindFeedNewPost, KindNotificationNew:
		return true
	}
	return false
}

// UserRef is the public view of a user embedded in payloads.
type UserRef struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ChatMessage is the payload of chat.message.
type ChatMessage struct {
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Sender    UserRef   `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Post is a feed item produced by the external post service.
type Post struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Author   UserRef `json:"author"`
	FeedType string  `json:"feed_type,omitempty"`
}

// FeedNewPost is the payload of feed.new_post.
type FeedNewPost struct {
	Post Post `json:"post"`
}

type Notification struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotificationNew is the payload of notification.new.
type NotificationNew struct {
	Notification Notification `json:"notification"`
}
