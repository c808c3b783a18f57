package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"searchgate.io/internal/consumer"
	"searchgate.io/internal/model"
	"searchgate.io/internal/queue"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(_ context.Context, e model.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.Name)
	return r.err
}

func TestInlinePublisherRunsSubscribers(t *testing.T) {
	rec := &recorder{err: errors.New("ignored")}
	other := &recorder{}
	p, err := NewPublisher(consumer.AdapterInline, nil, rec, other)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ref := model.NewRepositoryReference("app", "idx")
	if err := p.Publish(context.Background(), New(model.EventIndexWasCreated, ref, nil)); err != nil {
		t.Fatalf("inline publish must not fail on subscriber errors: %v", err)
	}
	if len(rec.seen) != 1 || len(other.seen) != 1 {
		t.Fatalf("every subscriber must run: %v %v", rec.seen, other.seen)
	}
}

func TestIgnorePublisherDrops(t *testing.T) {
	rec := &recorder{}
	p, err := NewPublisher(consumer.AdapterIgnore, nil, rec)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	_ = p.Publish(context.Background(), New(model.EventTokenWasAdded, model.NewRepositoryReference("app", ""), nil))
	if len(rec.seen) != 0 {
		t.Fatal("ignore adapter must not dispatch")
	}
}

func TestEnqueuePublisherRoundTripsThroughQueue(t *testing.T) {
	ctx := context.Background()
	if _, err := NewPublisher(consumer.AdapterEnqueue, consumer.NewManager(nil)); !errors.Is(err, model.ErrQueuePluginMissing) {
		t.Fatalf("expected ErrQueuePluginMissing, got %v", err)
	}

	backend := queue.NewMemoryBackend()
	m := consumer.NewManager(backend)
	rec := &recorder{}
	p, err := NewPublisher(consumer.AdapterEnqueue, m, rec)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ref := model.NewRepositoryReference("app", "idx")
	if err := p.Publish(ctx, New(model.EventItemsWereIndexed, ref, map[string]any{"count": 2})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rec.seen) != 0 {
		t.Fatal("enqueue adapter must not dispatch inline")
	}

	names, _ := m.Names(consumer.TypeDomainEvent)
	_, payload, err := backend.BlockingPop(ctx, names.Queue)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	var e model.DomainEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	label, err := p.Process(ctx, payload)
	if err != nil || label != model.EventItemsWereIndexed {
		t.Fatalf("process: %s %v", label, err)
	}
	if len(rec.seen) != 1 {
		t.Fatalf("expected dispatch from queue, got %v", rec.seen)
	}
	if _, err := p.Process(ctx, []byte("{")); !errors.Is(err, model.ErrInvalidFormat) {
		t.Fatalf("expected invalid format, got %v", err)
	}
}
