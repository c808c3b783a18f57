package stream

import (
	"context"
	"sync"
	"time"
)

// Consumer status event kinds.
const (
	EventPaused   = "paused"
	EventResumed  = "resumed"
	EventRejected = "rejected"
	EventConsumed = "consumed"
	EventFailed   = "failed"
)

// ConsumerEvent describes a state change or outcome observed by a queue consumer.
type ConsumerEvent struct {
	QueueType string    `json:"queue_type"`
	Consumer  string    `json:"consumer,omitempty"`
	Event     string    `json:"event"`
	Variant   string    `json:"variant,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs consumer events to all active subscribers (SSE clients, tests).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan ConsumerEvent
	next int
	size int
}

// New initialises an empty stream. bufferSize bounds each subscriber's backlog.
func New(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Stream{
		subs: make(map[int]chan ConsumerEvent),
		size: bufferSize,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan ConsumerEvent {
	ch := make(chan ConsumerEvent, s.size)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. A nil stream discards events.
func (s *Stream) Publish(evt ConsumerEvent) {
	if s == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking consumers.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
