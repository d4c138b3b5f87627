package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Event is the envelope that travels through the broker.
type Event struct {
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Origin      string          `json:"origin,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// New builds an event of the given kind. The payload must encode to a JSON object.
func New(kind Kind, payload any) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	if len(data) == 0 || data[0] != '{' {
		return Event{}, fmt.Errorf("%s payload must be an object", kind)
	}
	return Event{Kind: kind, Payload: data, PublishedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Marshal encodes the envelope for the wire between gateway instances.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an envelope received from the broker transport.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return e, nil
}

// Frame renders the client-facing frame: the payload object with a "type"
// field set to the event kind.
func (e Event) Frame() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, fmt.Errorf("failed to render %s frame: %w", e.Kind, err)
		}
	}
	kind, _ := json.Marshal(string(e.Kind))
	fields["type"] = kind
	return json.Marshal(fields)
}
