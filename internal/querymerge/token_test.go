package querymerge

import (
	"context"
	"testing"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
)

func tokenWith(meta map[string]any) model.Token {
	t := model.NewToken("12345", "app")
	for k, v := range meta {
		t.Metadata[k] = v
	}
	return t
}

func TestApplyTokenBaseQueryActsAsDefault(t *testing.T) {
	tok := tokenWith(map[string]any{BaseQueryKey: map[string]any{"q": "codigo"}})

	got, err := ApplyToken(model.QueryMatchAll(), tok, 0, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Q != "codigo" {
		t.Fatalf("expected base query to fill q, got %q", got.Q)
	}

	got, err = ApplyToken(model.QueryCreate("matutano"), tok, 0, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Q != "matutano" {
		t.Fatalf("caller q must win over base query, got %q", got.Q)
	}
}

func TestApplyTokenMergeAndForce(t *testing.T) {
	tok := tokenWith(map[string]any{
		MergeQueryKey: map[string]any{
			"filters": map[string]any{"b": map[string]any{"field": "b", "values": []any{"2"}}},
		},
		ForceQueryKey: map[string]any{"q": "forced"},
	})
	q := model.QueryCreate("mine")
	q.Filters = map[string]model.Filter{"a": {Field: "a", Values: []any{"1"}}}

	got, err := ApplyToken(q, tok, 0, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Q != "forced" {
		t.Fatalf("force query must win, got %q", got.Q)
	}
	if len(got.Filters) != 2 {
		t.Fatalf("expected filters a and b, got %v", got.Filters)
	}
}

func TestApplyTokenClampsSize(t *testing.T) {
	q := model.QueryMatchAll()
	q.Size = 500
	got, err := ApplyToken(q, tokenWith(nil), 100, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Size != 100 {
		t.Fatalf("expected clamp to 100, got %d", got.Size)
	}

	got, err = ApplyToken(model.QueryMatchAll(), tokenWith(nil), 5, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.EffectiveSize() != 5 {
		t.Fatalf("default size above limit must clamp, got %d", got.EffectiveSize())
	}
}

func TestApplyTokenSubstitutesPlaceholders(t *testing.T) {
	tok := tokenWith(map[string]any{ForceQueryKey: map[string]any{"q": "{{q}}", "page": "{{page}}"}})

	got, err := ApplyToken(model.QueryMatchAll(), tok, 0, map[string]string{"q": `co"di\go`, "page": "3"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Q != `co"di\go` {
		t.Fatalf("unexpected q %q", got.Q)
	}
	if got.Page != 3 {
		t.Fatalf("unexpected page %d", got.Page)
	}

	got, err = ApplyToken(model.QueryMatchAll(), tok, 0, map[string]string{"other": "x"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Q != "" || got.EffectivePage() != 1 {
		t.Fatalf("missing params must substitute empty, got %#v", got)
	}
}

func TestApplyTokenDoesNotModifyTokenMetadata(t *testing.T) {
	frag := map[string]any{"q": "x"}
	tok := tokenWith(map[string]any{BaseQueryKey: frag})
	if _, err := ApplyToken(model.QueryMatchAll(), tok, 1, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := frag["size"]; ok {
		t.Fatal("token fragment was modified")
	}
}

func TestMiddlewareRewritesQueryMessage(t *testing.T) {
	tok := tokenWith(map[string]any{ForceQueryKey: map[string]any{"q": "forced"}})
	msg := &bus.Query{
		Scope: bus.NewScope(model.NewRepositoryReference("app", "idx"), tok),
		Query: model.QueryCreate("orig"),
	}
	var seen string
	next := func(ctx context.Context, m bus.Message) (any, error) {
		seen = m.(*bus.Query).Query.Q
		return nil, nil
	}
	if _, err := (Middleware{Limit: 50}).Execute(context.Background(), msg, next); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if seen != "forced" {
		t.Fatalf("handler saw %q", seen)
	}
	if msg.Query.Q != "orig" {
		t.Fatal("dispatched message must stay immutable")
	}
}
