package broker

import (
	"context"
	"sync/atomic"

	"bsn-realtime/internal/events"
)

// MemoryBroker is a single-process loopback transport.
type MemoryBroker struct {
	registry *Registry
	opts     Options
	closed   atomic.Bool
}

func NewMemory(opts Options) *MemoryBroker {
	return &MemoryBroker{registry: NewRegistry(), opts: opts.withDefaults()}
}

func (b *MemoryBroker) Registry() *Registry { return b.registry }

func (b *MemoryBroker) Join(_ context.Context, group string, h Handle) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.registry.Add(group, h)
	return nil
}

func (b *MemoryBroker) Leave(_ context.Context, group string, h Handle) error {
	b.registry.Remove(group, h)
	return nil
}

func (b *MemoryBroker) Publish(_ context.Context, group string, evt events.Event) error {
	if b.closed.Load() {
		b.opts.Metrics.PublishFailures.WithLabelValues("memory").Inc()
		return ErrClosed
	}
	b.opts.Metrics.Published.WithLabelValues("memory").Inc()
	n := b.registry.Deliver(group, stamp(evt, b.opts.InstanceID))
	b.opts.Metrics.Delivered.Add(float64(n))
	return nil
}

func (b *MemoryBroker) Ping(context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (b *MemoryBroker) Close() error {
	b.closed.Store(true)
	return nil
}
