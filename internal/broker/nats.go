package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bsn-realtime/internal/events"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	subjectPrefix = "bsn.group."
	flushTimeout  = 2 * time.Second
)

func subjectName(group string) string { return subjectPrefix + group }

// NATSBroker keeps one NATS subscription per group with a local member.
type NATSBroker struct {
	conn     *nats.Conn
	ownsConn bool
	registry *Registry
	opts     Options
	log      *zap.Logger

	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool
}

func NewNATS(url string, opts Options) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name("bsn-realtime "+opts.InstanceID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b := NewNATSConn(nc, opts)
	b.ownsConn = true
	return b, nil
}

func NewNATSConn(nc *nats.Conn, opts Options) *NATSBroker {
	return &NATSBroker{
		conn:     nc,
		registry: NewRegistry(),
		opts:     opts.withDefaults(),
		log:      zap.L().With(zap.String("component", "broker"), zap.String("transport", "nats")),
		subs:     make(map[string]*nats.Subscription),
	}
}

func (b *NATSBroker) Registry() *Registry { return b.registry }

func (b *NATSBroker) Join(_ context.Context, group string, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	_, first := b.registry.Add(group, h)
	if !first {
		return nil
	}

	sub, err := b.conn.Subscribe(subjectName(group), func(m *nats.Msg) {
		evt, err := events.Unmarshal(m.Data)
		if err != nil {
			b.log.Warn("dropping undecodable event", zap.String("group", group), zap.Error(err))
			return
		}
		n := b.registry.Deliver(group, evt)
		b.opts.Metrics.Delivered.Add(float64(n))
	})
	if err == nil {
		// the subscription must reach the server before Join returns
		err = b.conn.FlushTimeout(flushTimeout)
	}
	if err != nil {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		b.registry.restore(group, h, false)
		return fmt.Errorf("subscribe %s: %w", group, err)
	}
	b.subs[group] = sub
	return nil
}

func (b *NATSBroker) Leave(_ context.Context, group string, h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, last := b.registry.Remove(group, h)
	if !last {
		return nil
	}
	sub, ok := b.subs[group]
	if !ok {
		return nil
	}
	delete(b.subs, group)
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", group, err)
	}
	return nil
}

func (b *NATSBroker) Publish(_ context.Context, group string, evt events.Event) error {
	data, err := stamp(evt, b.opts.InstanceID).Marshal()
	if err != nil {
		return err
	}
	if err := b.conn.Publish(subjectName(group), data); err != nil {
		b.opts.Metrics.PublishFailures.WithLabelValues("nats").Inc()
		return fmt.Errorf("publish %s: %w", group, err)
	}
	b.opts.Metrics.Published.WithLabelValues("nats").Inc()
	return nil
}

func (b *NATSBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats status %s", b.conn.Status())
	}
	return nil
}

func (b *NATSBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for group, sub := range b.subs {
		_ = sub.Unsubscribe()
		delete(b.subs, group)
	}
	if b.ownsConn {
		b.conn.Close()
	}
	return nil
}
