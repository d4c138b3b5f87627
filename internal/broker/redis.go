package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bsn-realtime/internal/events"
	bsnredis "bsn-realtime/internal/redis"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "bsn:group:"
	controlPrefix  = "bsn:instance:"
	receiveBacklog = 1024
)

func channelName(group string) string { return channelPrefix + group }

// RedisBroker multiplexes every local group over one PubSub connection. The
// first local Join of a group subscribes its channel and the last Leave
// unsubscribes it.
type RedisBroker struct {
	client     goredis.UniversalClient
	ownsClient bool
	pubsub     *goredis.PubSub
	registry   *Registry
	opts       Options
	log        *zap.Logger

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	// pending SUBSCRIBE confirmations, keyed by channel
	ackMu sync.Mutex
	acks  map[string]chan struct{}
}

// NewRedisURL dials url and owns the resulting client.
func NewRedisURL(ctx context.Context, url string, opts Options) (*RedisBroker, error) {
	client, err := bsnredis.NewClient(url)
	if err != nil {
		return nil, err
	}
	b, err := NewRedis(ctx, client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.ownsClient = true
	return b, nil
}

// NewRedis starts the receive loop on an existing client. The instance's
// control channel is subscribed up front so the PubSub connection is live
// before the first Join.
func NewRedis(ctx context.Context, client goredis.UniversalClient, opts Options) (*RedisBroker, error) {
	opts = opts.withDefaults()
	pubsub := client.Subscribe(ctx, controlPrefix+opts.InstanceID)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis broker subscribe: %w", err)
	}

	b := &RedisBroker{
		client:   client,
		pubsub:   pubsub,
		registry: NewRegistry(),
		opts:     opts,
		log:      zap.L().With(zap.String("component", "broker"), zap.String("transport", "redis")),
		done:     make(chan struct{}),
		acks:     make(map[string]chan struct{}),
	}
	go b.receive(pubsub.ChannelWithSubscriptions(goredis.WithChannelSize(receiveBacklog)))
	return b, nil
}

func (b *RedisBroker) Registry() *Registry { return b.registry }

// Join returns once Redis has confirmed the channel subscription, so a
// publish issued after it is delivered to h.
func (b *RedisBroker) Join(ctx context.Context, group string, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed() {
		return ErrClosed
	}
	_, first := b.registry.Add(group, h)
	if !first {
		return nil
	}
	channel := channelName(group)
	ack := b.expectAck(channel)
	err := b.pubsub.Subscribe(ctx, channel)
	if err == nil {
		select {
		case <-ack:
			return nil
		case <-b.done:
			err = ErrClosed
		case <-ctx.Done():
			err = ctx.Err()
			_ = b.pubsub.Unsubscribe(context.Background(), channel)
		}
	}
	b.dropAck(channel)
	b.registry.restore(group, h, false)
	return fmt.Errorf("subscribe %s: %w", group, err)
}

func (b *RedisBroker) expectAck(channel string) <-chan struct{} {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	ch := make(chan struct{})
	b.acks[channel] = ch
	return ch
}

func (b *RedisBroker) dropAck(channel string) {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	delete(b.acks, channel)
}

func (b *RedisBroker) confirm(channel string) {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	if ch, ok := b.acks[channel]; ok {
		close(ch)
		delete(b.acks, channel)
	}
}

func (b *RedisBroker) Leave(ctx context.Context, group string, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, last := b.registry.Remove(group, h)
	if !last || b.isClosed() {
		return nil
	}
	if err := b.pubsub.Unsubscribe(ctx, channelName(group)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", group, err)
	}
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, group string, evt events.Event) error {
	data, err := stamp(evt, b.opts.InstanceID).Marshal()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelName(group), data).Err(); err != nil {
		b.opts.Metrics.PublishFailures.WithLabelValues("redis").Inc()
		return fmt.Errorf("publish %s: %w", group, err)
	}
	b.opts.Metrics.Published.WithLabelValues("redis").Inc()
	return nil
}

func (b *RedisBroker) receive(ch <-chan interface{}) {
	defer close(b.done)
	for raw := range ch {
		var msg *goredis.Message
		switch m := raw.(type) {
		case *goredis.Subscription:
			if m.Kind == "subscribe" {
				b.confirm(m.Channel)
			}
			continue
		case *goredis.Message:
			msg = m
		default:
			continue
		}
		group, ok := strings.CutPrefix(msg.Channel, channelPrefix)
		if !ok {
			continue
		}
		evt, err := events.Unmarshal([]byte(msg.Payload))
		if err != nil {
			b.log.Warn("dropping undecodable event", zap.String("group", group), zap.Error(err))
			continue
		}
		n := b.registry.Deliver(group, evt)
		b.opts.Metrics.Delivered.Add(float64(n))
	}
}

func (b *RedisBroker) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	if b.isClosed() {
		return ErrClosed
	}
	return bsnredis.Ping(ctx, b.client)
}

// Close stops the receive loop. A client passed to NewRedis stays open.
func (b *RedisBroker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		if b.ownsClient {
			if cerr := b.client.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
