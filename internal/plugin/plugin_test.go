package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/handler"
	"searchgate.io/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	seen []bus.Message
}

func (r *recorder) handle(_ context.Context, msg bus.Message) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, msg)
	return nil, nil
}

func (r *recorder) last() bus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func newBus(rec *recorder, ps []Plugin) *bus.Bus {
	b := bus.New()
	for _, v := range bus.Variants() {
		b.Register(v, bus.HandlerFunc(rec.handle))
	}
	b.Use(Middleware(ps)...)
	return b
}

func tokenWith(plugins ...string) model.Token {
	t := model.NewToken("t1", "app")
	t.Plugins = plugins
	return t
}

func TestBuildRejectsUnknownAndKeepsOrder(t *testing.T) {
	if _, err := Build([]string{"security", "nope"}, Deps{}); err == nil {
		t.Fatal("expected unknown plugin error")
	}
	if _, err := Build([]string{"interactions"}, Deps{}); err == nil {
		t.Fatal("expected missing endpoint error")
	}
	ps, err := Build([]string{"metadata_fields", " Security ", "security", "health"}, Deps{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := Names(ps)
	want := []string{MetadataFields, Security, Health}
	if len(got) != len(want) {
		t.Fatalf("unexpected plugins %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
	if n := len(Validators(ps)); n != 2 {
		t.Fatalf("expected referrer and seconds validators without counters, got %d", n)
	}
}

func TestGateRunsOnlyForEnabledTokens(t *testing.T) {
	rec := &recorder{}
	ps, err := Build([]string{MetadataFields}, Deps{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b := newBus(rec, ps)
	ctx := context.Background()
	ref := model.NewRepositoryReference("app", "products-plugin-redis")

	if _, err := b.Dispatch(ctx, &bus.DeleteItems{Scope: bus.NewScope(ref, tokenWith())}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := rec.last().Reference().IndexUUID; got != "products-plugin-redis" {
		t.Fatalf("plugin ran for a token that does not enable it: %s", got)
	}

	if _, err := b.Dispatch(ctx, &bus.DeleteItems{Scope: bus.NewScope(ref, tokenWith("metadata_fields"))}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := rec.last().Reference().IndexUUID; got != "products" {
		t.Fatalf("expected stripped index, got %s", got)
	}

	god := model.NewGodToken("g", "app")
	if _, err := b.Dispatch(ctx, &bus.DeleteItems{Scope: bus.NewScope(ref, god)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := rec.last().Reference().IndexUUID; got != "products" {
		t.Fatalf("god token should enable every plugin, got %s", got)
	}
}

func TestStripIndexSuffixComposite(t *testing.T) {
	got := StripIndexSuffix("b-plugin-x-plugin-y, a")
	if got != "a,b" {
		t.Fatalf("unexpected strip: %q", got)
	}
}

func TestRestrictedFieldsIsMandatoryAndCopies(t *testing.T) {
	rec := &recorder{}
	ps, err := Build([]string{Security}, Deps{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b := newBus(rec, ps)

	tok := tokenWith()
	tok.Metadata["restricted_fields"] = []any{"price"}
	tok.Metadata["allowed_fields"] = []any{"title"}
	orig := &bus.Query{
		Scope: bus.NewScope(model.NewRepositoryReference("app", "products"), tok),
		Query: model.Query{Fields: []string{"id"}},
	}
	if _, err := b.Dispatch(context.Background(), orig); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	fields := rec.last().(*bus.Query).Query.Fields
	want := []string{"id", "!price", "title"}
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("unexpected fields %v", fields)
		}
	}
	if len(orig.Query.Fields) != 1 {
		t.Fatalf("original message mutated: %v", orig.Query.Fields)
	}
}

func TestEventServerForwardsAfterStore(t *testing.T) {
	received := make(chan interactionEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev interactionEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- ev
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rec := &recorder{}
	ps, err := Build([]string{Interactions}, Deps{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b := newBus(rec, ps)
	when := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := &bus.AddInteraction{
		Scope: bus.NewScope(model.NewRepositoryReference("app", "products"), tokenWith(Interactions)),
		Interaction: model.Interaction{
			User: "u1", Item: model.ItemUUID{ID: "1", Type: "p"}, Weight: 2, OccurredOn: when,
		},
	}
	if _, err := b.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case ev := <-received:
		if ev.EntityID != "u1" || ev.TargetEntityID != "1~p" || ev.EventTime != "2024-05-01T10:00:00Z" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event server not called")
	}
	if len(rec.seen) != 1 {
		t.Fatalf("interaction not stored")
	}
}

func TestEventServerFailureDoesNotFailCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := &EventServer{Endpoint: srv.URL, Client: srv.Client()}
	if err := s.Send(context.Background(), model.Interaction{User: "u"}); !model.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	_, err := s.Execute(context.Background(), &bus.AddInteraction{}, func(context.Context, bus.Message) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("forward failure leaked: %v", err)
	}
}

func TestHealthStatusFoldsChecks(t *testing.T) {
	b := bus.New()
	b.Register(bus.VariantCheckHealth, bus.HandlerFunc(func(context.Context, bus.Message) (any, error) {
		return &handler.HealthReport{Healthy: true, Status: map[string]string{"index_store": handler.StatusGreen}}, nil
	}))
	for _, v := range bus.Variants() {
		if v != bus.VariantCheckHealth {
			b.Register(v, bus.HandlerFunc(func(context.Context, bus.Message) (any, error) { return nil, nil }))
		}
	}
	ps, err := Build([]string{Health}, Deps{Checks: map[string]Check{
		"counters": func(context.Context) error { return errors.New("down") },
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b.Use(Middleware(ps)...)

	res, err := b.Dispatch(context.Background(), &bus.CheckHealth{Scope: bus.NewScope(model.NewRepositoryReference("app", ""), tokenWith())})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	report := res.(*handler.HealthReport)
	if report.Healthy || report.Status["counters"] != handler.StatusRed {
		t.Fatalf("unexpected report %+v", report)
	}
}
