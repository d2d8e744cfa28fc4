package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/voicewire/voicewire/pkg/protocol"
)

// MemoryBus is an in-process event bus. Every channel connected to the same
// path sees every published event, including its own. Useful for tests and
// single-process deployments.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memoryChannel
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memoryChannel)}
}

func (b *MemoryBus) Connect(_ context.Context, path string) (Channel, error) {
	ch := &memoryChannel{bus: b, path: path}
	b.mu.Lock()
	b.subs[path] = append(b.subs[path], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *MemoryBus) publish(path string, ev protocol.Event) {
	b.mu.Lock()
	targets := make([]*memoryChannel, len(b.subs[path]))
	copy(targets, b.subs[path])
	b.mu.Unlock()

	for _, ch := range targets {
		ch.deliver(ev)
	}
}

func (b *MemoryBus) remove(target *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := b.subs[target.path]
	for i, ch := range chans {
		if ch == target {
			b.subs[target.path] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
}

type memoryChannel struct {
	bus  *MemoryBus
	path string

	mu      sync.Mutex
	closed  bool
	onEvent func(protocol.Event)
}

func (ch *memoryChannel) Subscribe(onEvent func(protocol.Event), _ func(error)) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return fmt.Errorf("channel %s is closed", ch.path)
	}
	ch.onEvent = onEvent
	return nil
}

func (ch *memoryChannel) Publish(_ context.Context, ev protocol.Event) error {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return fmt.Errorf("channel %s is closed", ch.path)
	}
	ch.bus.publish(ch.path, ev)
	return nil
}

func (ch *memoryChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.onEvent = nil
	ch.mu.Unlock()
	ch.bus.remove(ch)
	return nil
}

func (ch *memoryChannel) deliver(ev protocol.Event) {
	ch.mu.Lock()
	onEvent := ch.onEvent
	ch.mu.Unlock()
	if onEvent != nil {
		onEvent(ev)
	}
}

var _ Client = (*MemoryBus)(nil)
