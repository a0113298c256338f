package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBus is a process-local fan-out used for single-process runs and
// tests. Delivery is synchronous in Publish.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	logger *zap.Logger
}

type memorySub struct {
	topic   string
	handler Handler
}

func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		subs:   make(map[string][]*memorySub),
		logger: logger,
	}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	subs := append([]*memorySub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(topic, payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	sub := &memorySub{topic: topic, handler: h}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(topic, sub)
	}()
	return nil
}

func (b *MemoryBus) remove(topic string, target *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subs[topic]
	filtered := make([]*memorySub, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subs[topic] = filtered
}

func (b *MemoryBus) Close() {}
