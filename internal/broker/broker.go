//go:generate go run go.uber.org/mock/mockgen -source=broker.go -destination=../mocks/mock_broker.go -package=mocks
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bsn-realtime/internal/events"
	"bsn-realtime/internal/metrics"
)

var ErrClosed = errors.New("broker closed")

// Handle is a local recipient of group events, normally one websocket
// connection. Deliver must not block.
type Handle interface {
	ID() string
	Deliver(evt events.Event)
}

// Broker fans events out to every gateway instance that has a local member
// of the group. Join and Leave are idempotent per (group, handle).
type Broker interface {
	Join(ctx context.Context, group string, h Handle) error
	Leave(ctx context.Context, group string, h Handle) error
	Publish(ctx context.Context, group string, evt events.Event) error
	Close() error
}

// Options are shared by every transport.
type Options struct {
	InstanceID string
	Metrics    *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

// New selects a transport from the url scheme: kv:// or redis:// for Redis,
// nats:// for NATS and memory:// for the in-process loopback.
func New(ctx context.Context, url string, opts Options) (Broker, error) {
	switch {
	case strings.HasPrefix(url, "kv://"), strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisURL(ctx, url, opts)
	case strings.HasPrefix(url, "nats://"), strings.HasPrefix(url, "tls://"):
		return NewNATS(url, opts)
	case strings.HasPrefix(url, "memory://"):
		return NewMemory(opts), nil
	default:
		return nil, fmt.Errorf("unsupported broker url %q", url)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping reports transport health for brokers that can tell.
func Ping(ctx context.Context, b Broker) error {
	if p, ok := b.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func stamp(evt events.Event, origin string) events.Event {
	if evt.Origin == "" {
		evt.Origin = origin
	}
	return evt
}
