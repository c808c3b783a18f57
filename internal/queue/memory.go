package queue

import (
	"context"
	"sync"

	"searchgate.io/internal/ids"
)

// MemoryBackend is an in-process Backend. It serves tests and single-process deployments
// where the API server and consumers share one binary.
type MemoryBackend struct {
	mu        sync.Mutex
	queues    map[string][][]byte
	listeners map[string]map[string]struct{}
	changed   chan struct{}
	closed    bool
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues:    make(map[string][][]byte),
		listeners: make(map[string]map[string]struct{}),
		changed:   make(chan struct{}),
	}
}

// notifyLocked wakes every blocked pop.
func (b *MemoryBackend) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *MemoryBackend) Push(ctx context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.queues[queue] = append(b.queues[queue], clone(payload))
	b.notifyLocked()
	return nil
}

func (b *MemoryBackend) BlockingPop(ctx context.Context, queues ...string) (string, []byte, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return "", nil, ErrClosed
		}
		for _, name := range queues {
			items := b.queues[name]
			if len(items) == 0 {
				continue
			}
			head := items[0]
			items[0] = nil
			b.queues[name] = items[1:]
			b.mu.Unlock()
			return name, head, nil
		}
		wait := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-wait:
		}
	}
}

func (b *MemoryBackend) Reject(ctx context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.queues[queue] = append([][]byte{clone(payload)}, b.queues[queue]...)
	b.notifyLocked()
	return nil
}

func (b *MemoryBackend) Broadcast(ctx context.Context, channel string, busy bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	payload := BusyPayload(busy)
	for listener := range b.listeners[channel] {
		b.queues[listener] = append(b.queues[listener], payload)
	}
	b.notifyLocked()
	return nil
}

func (b *MemoryBackend) Subscribe(ctx context.Context, channel string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	listener := channel + "." + ids.New()
	if b.listeners[channel] == nil {
		b.listeners[channel] = make(map[string]struct{})
	}
	b.listeners[channel][listener] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.listeners[channel], listener)
		delete(b.queues, listener)
		b.mu.Unlock()
	}()
	return listener, nil
}

func (b *MemoryBackend) Depth(ctx context.Context, queue string) (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue]), true, nil
}

// Listeners returns the number of live subscriptions on channel.
func (b *MemoryBackend) Listeners(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[channel])
}

// Close wakes blocked pops and fails further calls.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.notifyLocked()
	}
	return nil
}

func clone(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
