package model

import (
	"errors"
	"testing"
)

func TestRepositoryReferenceNormalisesComposite(t *testing.T) {
	a := NewRepositoryReference("app", "b, a,b")
	b := NewRepositoryReference(" app ", "a,b")
	if a != b {
		t.Fatalf("expected equal references, got %#v and %#v", a, b)
	}
	if a.Compose() != "app_a,b" {
		t.Fatalf("unexpected compose: %s", a.Compose())
	}
	seen := map[RepositoryReference]int{a: 1}
	if seen[b] != 1 {
		t.Fatal("expected equal references to share a map key")
	}
}

func TestRepositoryReferenceWildcardCollapses(t *testing.T) {
	ref := NewRepositoryReference("app", "a,*,c")
	if !ref.IndexUUID.IsWildcard() {
		t.Fatalf("expected wildcard, got %q", ref.IndexUUID)
	}
	if got := len(ref.Expand()); got != 1 {
		t.Fatalf("expected single expansion, got %d", got)
	}
	if ref := NewRepositoryReference("app", ""); ref.Compose() != "app" {
		t.Fatalf("unexpected compose without index: %s", ref.Compose())
	}
}

func TestQueryToMapOmitsDefaults(t *testing.T) {
	m, err := Query{Page: 1, Size: 10}.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}

	q := QueryCreate("codigo")
	q.Size = 30
	m, err = q.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	back, err := QueryFromMap(m)
	if err != nil {
		t.Fatalf("QueryFromMap: %v", err)
	}
	if back.Q != "codigo" || back.Size != 30 {
		t.Fatalf("unexpected round trip: %#v", back)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	if !errors.Is(NewInvalidToken("t1", "expired"), ErrInvalidToken) {
		t.Fatal("expected invalid token sentinel")
	}
	ref := NewRepositoryReference("app", "idx")
	if !errors.Is(IndexExists(ref), ErrResourceExists) {
		t.Fatal("expected resource exists sentinel")
	}
	err := IndexNotAvailable(ref, Transport("search", errors.New("down")))
	if !errors.Is(err, ErrResourceNotAvailable) || !IsTransport(err) {
		t.Fatalf("expected not available wrapping transport error, got %v", err)
	}
}

func TestTokenMetadataAccessors(t *testing.T) {
	tok := NewToken("t", "app")
	tok.Metadata["requests_limit"] = []any{"10/s", 4}
	tok.Metadata["seconds_valid"] = float64(30)
	if got := tok.MetadataStrings("requests_limit"); len(got) != 1 || got[0] != "10/s" {
		t.Fatalf("unexpected strings: %v", got)
	}
	if tok.MetadataInt("seconds_valid", 0) != 30 {
		t.Fatal("expected seconds_valid 30")
	}
	if tok.IsGod() {
		t.Fatal("plain token must not be god")
	}
	if !NewGodToken("g", "app").IsGod() {
		t.Fatal("expected god token")
	}
}
