package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/queue"
	"searchgate.io/internal/stream"
)

// DefaultWaitOnBusy is how long a paused consumer sleeps after rejecting a message.
const DefaultWaitOnBusy = 10 * time.Second

// Processor executes one payload popped from a work queue. The returned label names the
// payload in logs and status events.
type Processor interface {
	Process(ctx context.Context, payload []byte) (label string, err error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, payload []byte) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, payload []byte) (string, error) {
	return f(ctx, payload)
}

// Consumer is the loop of one process consuming one queue type. It handles a single
// message at a time.
type Consumer struct {
	id        string
	typ       Type
	names     Names
	backend   queue.Backend
	processor Processor
	wait      time.Duration
	stream    *stream.Stream
	busy      atomic.Bool
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithWaitOnBusy sets the sleep after a rejected message.
func WithWaitOnBusy(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.wait = d
		}
	}
}

// WithConsumerID names the consumer in logs and events.
func WithConsumerID(id string) ConsumerOption {
	return func(c *Consumer) { c.id = id }
}

// NewConsumer builds a consumer for t. It fails when the manager has no backend.
func (m *Manager) NewConsumer(t Type, p Processor, opts ...ConsumerOption) (*Consumer, error) {
	n, err := m.lookup(t)
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		id:        ids.New(),
		typ:       t,
		names:     n,
		backend:   m.backend,
		processor: p,
		wait:      DefaultWaitOnBusy,
		stream:    m.stream,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID returns the consumer id.
func (c *Consumer) ID() string { return c.id }

// Busy reports whether the consumer is currently paused.
func (c *Consumer) Busy() bool { return c.busy.Load() }

// Run consumes until ctx ends or the backend closes.
func (c *Consumer) Run(ctx context.Context) error {
	listener, err := c.backend.Subscribe(ctx, c.names.Busy)
	if err != nil {
		return model.Transport("subscribe "+c.names.Busy, err)
	}
	obs.Info("consumer started", c.fields(map[string]any{"queue": c.names.Queue}))

	for {
		name, payload, err := c.backend.BlockingPop(ctx, listener, c.names.Queue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				obs.Info("consumer stopped", c.fields(nil))
				return nil
			}
			obs.Error("queue receive failed", c.fields(map[string]any{"error": err.Error()}))
			c.sleep(ctx)
			continue
		}

		if name == listener {
			c.setBusy(queue.ParseBusy(payload))
			continue
		}

		if c.busy.Load() {
			c.reject(ctx, payload)
			continue
		}

		c.process(ctx, payload)
	}
}

func (c *Consumer) setBusy(busy bool) {
	if c.busy.Swap(busy) == busy {
		return
	}
	obs.SetConsumerBusy(string(c.typ), busy)
	event := stream.EventResumed
	msg := "consumer resumed"
	if busy {
		event = stream.EventPaused
		msg = "consumer paused"
	}
	obs.Info(msg, c.fields(nil))
	c.publish(event, "", nil)
}

func (c *Consumer) reject(ctx context.Context, payload []byte) {
	if err := c.backend.Reject(ctx, c.names.Queue, payload); err != nil {
		obs.Error("reject failed", c.fields(map[string]any{"error": err.Error()}))
	}
	obs.CountQueue(string(c.typ), "rejected")
	obs.Info("busy channel, rejecting", c.fields(map[string]any{"wait_seconds": c.wait.Seconds()}))
	c.publish(stream.EventRejected, "", nil)
	c.sleep(ctx)
}

func (c *Consumer) process(ctx context.Context, payload []byte) {
	label, err := c.processor.Process(ctx, payload)
	if err != nil {
		obs.CountQueue(string(c.typ), "failed")
		msg := "message failed"
		if errors.Is(err, model.ErrInvalidFormat) {
			msg = "message dropped"
		}
		obs.Error(msg, c.fields(map[string]any{"label": label, "error": err.Error()}))
		c.publish(stream.EventFailed, label, err)
		return
	}
	obs.CountQueue(string(c.typ), "consumed")
	obs.Debug("message consumed", c.fields(map[string]any{"label": label}))
	c.publish(stream.EventConsumed, label, nil)
}

func (c *Consumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) publish(event, label string, err error) {
	evt := stream.ConsumerEvent{
		QueueType: string(c.typ),
		Consumer:  c.id,
		Event:     event,
		Variant:   label,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	c.stream.Publish(evt)
}

func (c *Consumer) fields(extra map[string]any) map[string]any {
	f := map[string]any{"consumer": c.id, "queue_type": string(c.typ)}
	for k, v := range extra {
		f[k] = v
	}
	return f
}
