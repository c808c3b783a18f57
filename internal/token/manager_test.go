package token

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"searchgate.io/internal/model"
)

type stubLocator struct {
	valid bool
	tok   *model.Token
	calls atomic.Int32
}

func (s *stubLocator) IsValid() bool { return s.valid }

func (s *stubLocator) TokenByUUID(context.Context, model.AppUUID, model.TokenUUID) (*model.Token, error) {
	s.calls.Add(1)
	return s.tok, nil
}

type rejectAll struct{}

func (rejectAll) Name() string { return "reject_all" }

func (rejectAll) IsTokenValid(context.Context, model.Token, Request) (bool, error) { return false, nil }

func TestLocatorPrecedence(t *testing.T) {
	first := model.NewToken("t", "app")
	first.Plugins = []string{"first"}
	second := model.NewToken("t", "app")
	second.Plugins = []string{"second"}

	invalid := &stubLocator{valid: false, tok: &second}
	empty := &stubLocator{valid: true}
	winner := &stubLocator{valid: true, tok: &first}
	loser := &stubLocator{valid: true, tok: &second}

	m := NewManager(WithLocators(invalid, empty, winner, loser))
	got, err := m.CheckToken(context.Background(), Request{AppUUID: "app"}, "t")
	if err != nil {
		t.Fatalf("CheckToken: %v", err)
	}
	if !got.HasPlugin("first") {
		t.Fatalf("expected first matching locator to win, got %v", got.Plugins)
	}
	if invalid.calls.Load() != 0 {
		t.Fatal("invalid locator must be skipped")
	}
	if loser.calls.Load() != 0 {
		t.Fatal("locators after the first match must not be consulted")
	}
}

func TestCheckTokenFailures(t *testing.T) {
	repo := NewMemoryRepository()
	_ = repo.PutToken(context.Background(), model.NewToken("t", "app"))

	m := NewManager(WithLocators(repo), WithValidators(Credentials{}))
	cases := map[string]struct {
		req  Request
		uuid model.TokenUUID
	}{
		"missing":      {Request{AppUUID: "app"}, ""},
		"unknown":      {Request{AppUUID: "app"}, "nope"},
		"other tenant": {Request{AppUUID: "other"}, "t"},
	}
	for name, tc := range cases {
		if _, err := m.CheckToken(context.Background(), tc.req, tc.uuid); !errors.Is(err, model.ErrInvalidToken) {
			t.Fatalf("%s: expected invalid token, got %v", name, err)
		}
	}
}

func TestAddingFailingValidatorFlipsResult(t *testing.T) {
	repo := NewMemoryRepository()
	_ = repo.PutToken(context.Background(), model.NewToken("t", "app"))
	req := Request{AppUUID: "app", IndexUUID: "idx", Verb: "GET", Path: "/v1/app/indices/idx/search"}

	passing := NewManager(WithLocators(repo), WithValidators(Credentials{}, HTTPReferrers{}, SecondsValid{}))
	if _, err := passing.CheckToken(context.Background(), req, "t"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	failing := NewManager(WithLocators(repo), WithValidators(Credentials{}, HTTPReferrers{}, SecondsValid{}, rejectAll{}))
	_, err := failing.CheckToken(context.Background(), req, "t")
	var ite *model.InvalidTokenError
	if !errors.As(err, &ite) || ite.Reason != "reject_all" {
		t.Fatalf("expected rejection by reject_all, got %v", err)
	}
}

func TestGodTokenBypassesValidators(t *testing.T) {
	m := NewManager(
		WithLocators(NewServerTokensLocator(ServerTokens{God: "god-secret", Ping: "ping-secret"})),
		WithValidators(rejectAll{}),
	)
	got, err := m.CheckToken(context.Background(), Request{AppUUID: "any"}, "god-secret")
	if err != nil {
		t.Fatalf("god token: %v", err)
	}
	if !got.IsGod() || got.AppUUID != "any" {
		t.Fatalf("unexpected god token %#v", got)
	}
	if _, err := m.CheckToken(context.Background(), Request{AppUUID: "any"}, "ping-secret"); !errors.Is(err, model.ErrInvalidToken) {
		t.Fatalf("ping token is validated like any other, got %v", err)
	}
}

func TestPingTokenEndpoints(t *testing.T) {
	m := NewManager(
		WithLocators(NewServerTokensLocator(ServerTokens{Ping: "ping-secret"})),
		WithValidators(Credentials{}),
	)
	if _, err := m.CheckToken(context.Background(), Request{AppUUID: "a", Verb: "GET", Path: "/health"}, "ping-secret"); err != nil {
		t.Fatalf("ping token on health: %v", err)
	}
	if _, err := m.CheckToken(context.Background(), Request{AppUUID: "a", Verb: "PUT", Path: "/v1/a/indices/x"}, "ping-secret"); !errors.Is(err, model.ErrInvalidToken) {
		t.Fatalf("ping token must not create indices, got %v", err)
	}
}

func TestCachingLocator(t *testing.T) {
	tok := model.NewToken("t", "app")
	inner := &stubLocator{valid: true, tok: &tok}
	c := NewCachingLocator(inner, time.Minute)
	defer c.Stop()

	for i := 0; i < 3; i++ {
		got, err := c.TokenByUUID(context.Background(), "app", "t")
		if err != nil || got == nil {
			t.Fatalf("lookup %d: %v %v", i, got, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected a single inner lookup, got %d", inner.calls.Load())
	}
	c.Invalidate("app", "t")
	_, _ = c.TokenByUUID(context.Background(), "app", "t")
	if inner.calls.Load() != 2 {
		t.Fatalf("expected lookup after invalidation, got %d", inner.calls.Load())
	}
}

func TestSignedLocator(t *testing.T) {
	secret := []byte("s3cret")
	src := model.NewToken("", "app")
	src.Indices = []model.IndexUUID{"products"}
	src.Metadata = map[string]any{"base_query": map[string]any{"q": "codigo"}}

	signed, err := Sign(secret, src, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	loc := NewSignedLocator(string(secret))
	got, err := loc.TokenByUUID(context.Background(), "app", model.TokenUUID(signed))
	if err != nil || got == nil {
		t.Fatalf("TokenByUUID: %v %v", got, err)
	}
	if got.UUID == "" || len(got.Indices) != 1 || got.Indices[0] != "products" {
		t.Fatalf("unexpected token %#v", got)
	}
	if got, _ := loc.TokenByUUID(context.Background(), "other", model.TokenUUID(signed)); got != nil {
		t.Fatal("signed token must not resolve for another app")
	}
	if got, err := loc.TokenByUUID(context.Background(), "app", "plain-uuid"); got != nil || err != nil {
		t.Fatalf("non-JWT values are left to other locators, got %v %v", got, err)
	}
	forged, _ := Sign([]byte("other"), src, time.Hour)
	if _, err := loc.TokenByUUID(context.Background(), "app", model.TokenUUID(forged)); !errors.Is(err, model.ErrInvalidToken) {
		t.Fatalf("expected forged token rejection, got %v", err)
	}
}

func TestProvidersMerge(t *testing.T) {
	a := NewMemoryRepository()
	b := NewMemoryRepository()
	_ = a.PutToken(context.Background(), model.NewToken("t1", "app"))
	_ = b.PutToken(context.Background(), model.NewToken("t1", "app"))
	_ = b.PutToken(context.Background(), model.NewToken("t2", "app"))
	static := NewStaticLocator([]model.Token{model.NewToken("t3", "app"), model.NewToken("t4", "other")})

	tokens, err := Providers{a, b, static}.TokensByAppUUID(context.Background(), "app")
	if err != nil {
		t.Fatalf("TokensByAppUUID: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 distinct tokens, got %d", len(tokens))
	}
}
