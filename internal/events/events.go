// Package events publishes domain events to subscribers, either inline or through the
// domain event queue.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"searchgate.io/internal/consumer"
	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

// Subscriber reacts to domain events.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, e model.DomainEvent) error
}

// New builds an event scoped to ref.
func New(name string, ref model.RepositoryReference, payload map[string]any) model.DomainEvent {
	return model.DomainEvent{
		ID:         ids.New(),
		Name:       name,
		AppUUID:    ref.AppUUID,
		IndexUUID:  ref.IndexUUID,
		Payload:    payload,
		OccurredOn: time.Now().UTC(),
	}
}

// Publisher routes events according to its adapter: inline runs subscribers now, enqueue
// pushes to the domain event queue, ignore drops them.
type Publisher struct {
	adapter     string
	manager     *consumer.Manager
	subscribers []Subscriber
}

// NewPublisher validates the adapter. Enqueueing requires a manager with a backend.
func NewPublisher(adapter string, manager *consumer.Manager, subs ...Subscriber) (*Publisher, error) {
	switch adapter {
	case "":
		adapter = consumer.AdapterIgnore
	case consumer.AdapterInline, consumer.AdapterIgnore:
	case consumer.AdapterEnqueue:
		if manager == nil || manager.Backend() == nil {
			return nil, model.ErrQueuePluginMissing
		}
	default:
		return nil, fmt.Errorf("unknown domain events adapter %q", adapter)
	}
	return &Publisher{adapter: adapter, manager: manager, subscribers: subs}, nil
}

// Adapter returns the configured adapter.
func (p *Publisher) Adapter() string { return p.adapter }

// Publish routes e. Subscriber failures in inline mode are logged, never returned: the
// change the event describes has already happened.
func (p *Publisher) Publish(ctx context.Context, e model.DomainEvent) error {
	if p == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredOn.IsZero() {
		e.OccurredOn = time.Now().UTC()
	}

	switch p.adapter {
	case consumer.AdapterInline:
		if err := p.Dispatch(ctx, e); err != nil {
			obs.Error("domain event subscriber failed", map[string]any{
				"event": e.Name, "event_id": e.ID, "error": err.Error(),
			})
		}
		return nil
	case consumer.AdapterEnqueue:
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Name, err)
		}
		return p.manager.Enqueue(ctx, consumer.TypeDomainEvent, data)
	}
	return nil
}

// Dispatch runs every subscriber and joins their errors.
func (p *Publisher) Dispatch(ctx context.Context, e model.DomainEvent) error {
	var errs []error
	for _, s := range p.subscribers {
		if err := s.Handle(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Process decodes a queued event and dispatches it. It lets the publisher act as the
// domain event consumer's processor.
func (p *Publisher) Process(ctx context.Context, payload []byte) (string, error) {
	var e model.DomainEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return "", fmt.Errorf("%w: domain event: %v", model.ErrInvalidFormat, err)
	}
	return e.Name, p.Dispatch(ctx, e)
}
