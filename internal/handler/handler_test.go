package handler

import (
	"context"
	"errors"
	"testing"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/events"
	"searchgate.io/internal/model"
	"searchgate.io/internal/queue"
	"searchgate.io/internal/repository"
	"searchgate.io/internal/store/blevestore"
	"searchgate.io/internal/token"
)

type fixture struct {
	bus          *bus.Bus
	store        *blevestore.Store
	tokens       *token.MemoryRepository
	interactions *repository.MemoryInteractions
	backend      *queue.MemoryBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := blevestore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	repo := repository.New(store)
	tokens := token.NewMemoryRepository()
	interactions := repository.NewMemoryInteractions()
	backend := queue.NewMemoryBackend()
	manager := consumer.NewManager(backend)
	pub, err := events.NewPublisher(consumer.AdapterInline, manager, events.StoreSubscriber{Repo: repo})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	b := bus.New()
	Register(b, Deps{
		Repo:         repo,
		Tokens:       repository.NewTokenRepository(tokens, nil),
		Interactions: interactions,
		Events:       pub,
		Consumers:    manager,
		Version:      "test",
		Plugins:      []string{"security"},
	})
	return &fixture{bus: b, store: store, tokens: tokens, interactions: interactions, backend: backend}
}

func scope(index model.IndexUUID) bus.Scope {
	return bus.NewScope(model.NewRepositoryReference("app", index), model.NewGodToken("god", "app"))
}

func TestIndexAndQueryFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.bus.Dispatch(ctx, &bus.CreateIndex{Scope: scope("products")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.CreateIndex{Scope: scope("products")}); !errors.Is(err, model.ErrResourceExists) {
		t.Fatalf("expected ResourceExists, got %v", err)
	}
	_, err := f.bus.Dispatch(ctx, &bus.IndexItems{Scope: scope("products"), Items: []model.Item{
		{UUID: model.ItemUUID{ID: "1", Type: "p"}, SearchableMetadata: map[string]any{"title": "codigo"}},
		{UUID: model.ItemUUID{ID: "2", Type: "p"}, SearchableMetadata: map[string]any{"title": "matutano"}},
	}})
	if err != nil {
		t.Fatalf("index items: %v", err)
	}

	res, err := f.bus.Dispatch(ctx, &bus.Query{Scope: scope("products"), Query: model.QueryCreate("codigo")})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	result := res.(model.Result)
	if result.TotalHits != 1 || result.Items[0].UUID.ID != "1" {
		t.Fatalf("unexpected result %#v", result)
	}

	exists, _ := f.bus.Dispatch(ctx, &bus.CheckIndex{Scope: scope("products")})
	if exists != true {
		t.Fatal("expected index to exist")
	}

	_, err = f.bus.Dispatch(ctx, &bus.DeleteItems{Scope: scope("products"), ItemUUIDs: []model.ItemUUID{{ID: "1", Type: "p"}}})
	if err != nil {
		t.Fatalf("delete items: %v", err)
	}
	res, _ = f.bus.Dispatch(ctx, &bus.Query{Scope: scope("products"), Query: model.QueryMatchAll()})
	if res.(model.Result).TotalHits != 1 {
		t.Fatalf("expected one item left, got %d", res.(model.Result).TotalHits)
	}

	if _, err := f.bus.Dispatch(ctx, &bus.DeleteIndex{Scope: scope("products")}); err != nil {
		t.Fatalf("delete index: %v", err)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.Query{Scope: scope("products"), Query: model.QueryMatchAll()}); !errors.Is(err, model.ErrResourceNotAvailable) {
		t.Fatalf("expected ResourceNotAvailable, got %v", err)
	}
}

func TestTokenHandlers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.bus.Dispatch(ctx, &bus.AddToken{Scope: scope(""), NewToken: model.Token{AppUUID: "app"}})
	if err != nil {
		t.Fatalf("add token: %v", err)
	}
	added := res.(model.Token)
	if added.UUID == "" || added.TTL != model.DefaultTokenTTL {
		t.Fatalf("expected generated uuid and default ttl, got %#v", added)
	}

	res, err = f.bus.Dispatch(ctx, &bus.GetTokens{Scope: scope("")})
	if err != nil || len(res.([]model.Token)) != 1 {
		t.Fatalf("get tokens: %v %v", res, err)
	}

	if _, err := f.bus.Dispatch(ctx, &bus.DeleteToken{Scope: scope(""), TokenUUID: added.UUID}); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	res, _ = f.bus.Dispatch(ctx, &bus.GetTokens{Scope: scope("")})
	if len(res.([]model.Token)) != 0 {
		t.Fatal("expected no tokens")
	}
}

func TestEventsAreStoredOnceIndexExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.bus.Dispatch(ctx, &bus.CreateEventsIndex{Scope: scope("")}); err != nil {
		t.Fatalf("create events index: %v", err)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.CreateIndex{Scope: scope("products")}); err != nil {
		t.Fatalf("create index: %v", err)
	}

	res, err := f.bus.Dispatch(ctx, &bus.QueryEvents{Scope: scope(""), Name: model.EventIndexWasCreated})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	got := res.(EventsResult)
	if got.TotalHits != 1 || got.Events[0].IndexUUID != "products" {
		t.Fatalf("unexpected events %#v", got)
	}

	res, _ = f.bus.Dispatch(ctx, &bus.GetIndices{Scope: scope("")})
	if metas := res.([]model.IndexMeta); len(metas) != 1 {
		t.Fatalf("events index must not be listed, got %#v", metas)
	}
}

func TestHealthAndConsumers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.bus.Dispatch(ctx, &bus.CheckHealth{Scope: scope("")})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	report := res.(*HealthReport)
	if !report.Healthy || report.Status["index_store"] != StatusGreen || report.Info["version"] != "test" {
		t.Fatalf("unexpected report %#v", report)
	}
	if _, ok := report.Queues[string(consumer.TypeCommand)]; !ok {
		t.Fatalf("expected queue depth in report, got %#v", report.Queues)
	}

	listener, err := f.backend.Subscribe(ctx, consumer.DefaultNames()[consumer.TypeCommand].Busy)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.PauseConsumers{Scope: scope(""), Types: []string{"command"}}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, payload, err := f.backend.BlockingPop(ctx, listener)
	if err != nil || !queue.ParseBusy(payload) {
		t.Fatalf("expected busy broadcast, got %s %v", payload, err)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.ResumeConsumers{Scope: scope(""), Types: []string{"nope"}}); !errors.Is(err, model.ErrInvalidFormat) {
		t.Fatalf("expected invalid format for unknown type, got %v", err)
	}

	_ = f.store.Close()
	res, _ = f.bus.Dispatch(ctx, &bus.Ping{Scope: scope("")})
	if res != false {
		t.Fatal("ping must fail once the store is closed")
	}
}

func TestInteractions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := model.Interaction{User: "u1", Item: model.ItemUUID{ID: "1", Type: "p"}, Weight: 10}
	if _, err := f.bus.Dispatch(ctx, &bus.AddInteraction{Scope: scope("products"), Interaction: in}); err != nil {
		t.Fatalf("add interaction: %v", err)
	}
	if got := f.interactions.Interactions("app"); len(got) != 1 {
		t.Fatalf("expected one interaction, got %v", got)
	}
	if _, err := f.bus.Dispatch(ctx, &bus.DeleteAllInteractions{Scope: scope("")}); err != nil {
		t.Fatalf("delete interactions: %v", err)
	}
	if got := f.interactions.Interactions("app"); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}
