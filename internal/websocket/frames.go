package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Inbound command types
const (
	CmdSubscribeFeed           = "subscribe_feed"
	CmdSubscribeChat           = "subscribe_chat"
	CmdUnsubscribeChat         = "unsubscribe_chat"
	CmdSendChatMessage         = "send_chat_message"
	CmdMarkRead                = "mark_read"
	CmdFeedPreferences         = "feed_preferences"
	CmdNotificationPreferences = "notification_preferences"
	CmdHeartbeat               = "heartbeat"
)

// Outbound control frame types
const (
	FrameAck   = "ack"
	FrameError = "error"
)

// ID accepts a JSON string or integer. Clients send chat ids both ways.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be a string or integer")
	}
	*id = ID(strconv.FormatInt(n, 10))
	return nil
}

func (id ID) String() string { return string(id) }

// envelope is decoded first to route the frame.
type envelope struct {
	Type          string `json:"type" validate:"required,max=64"`
	CorrelationID string `json:"correlation_id,omitempty" validate:"omitempty,max=128"`
}

type subscribeFeedCommand struct {
	FeedType string `json:"feed_type" validate:"omitempty,max=32,printascii"`
}

type chatCommand struct {
	ChatID ID `json:"chat_id" validate:"required,max=128"`
}

type sendChatMessageCommand struct {
	ChatID  ID     `json:"chat_id" validate:"required,max=128"`
	Content string `json:"content"`
}

type preferencesCommand struct {
	Preferences map[string]json.RawMessage `json:"preferences"`
}

type ackFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Result        any    `json:"result"`
}

type errorFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

func newAck(correlationID string, result any) ackFrame {
	if result == nil {
		result = struct{}{}
	}
	return ackFrame{Type: FrameAck, CorrelationID: correlationID, Result: result}
}

func newError(correlationID string, err error) errorFrame {
	return errorFrame{
		Type:          FrameError,
		CorrelationID: correlationID,
		Code:          bsn_errors.FrameCode(err),
		Message:       bsn_errors.FrameMessage(err),
	}
}

// decoder parses and validates inbound frames.
type decoder struct {
	validate *validator.Validate
}

func newDecoder() *decoder {
	return &decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (d *decoder) envelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: malformed frame", bsn_errors.ErrInvalidInput)
	}
	if err := d.validate.Struct(env); err != nil {
		return env, fmt.Errorf("%w: %v", bsn_errors.ErrInvalidInput, err)
	}
	return env, nil
}

func (d *decoder) body(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", bsn_errors.ErrInvalidInput, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", bsn_errors.ErrInvalidInput, err)
	}
	return nil
}
