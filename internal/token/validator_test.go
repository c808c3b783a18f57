package token

import (
	"context"
	"testing"
	"time"

	"searchgate.io/internal/model"
)

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	base := model.NewToken("t", "app")

	cases := []struct {
		name string
		tok  func() model.Token
		req  Request
		want bool
	}{
		{"unrestricted", func() model.Token { return base }, Request{AppUUID: "app", IndexUUID: "a", Verb: "GET", Path: "/x"}, true},
		{"other app", func() model.Token { return base }, Request{AppUUID: "other"}, false},
		{"index listed", func() model.Token {
			tk := base
			tk.Indices = []model.IndexUUID{"a", "b"}
			return tk
		}, Request{AppUUID: "app", IndexUUID: "b"}, true},
		{"index not listed", func() model.Token {
			tk := base
			tk.Indices = []model.IndexUUID{"a"}
			return tk
		}, Request{AppUUID: "app", IndexUUID: "c"}, false},
		{"composite partially listed", func() model.Token {
			tk := base
			tk.Indices = []model.IndexUUID{"a"}
			return tk
		}, Request{AppUUID: "app", IndexUUID: "a,c"}, false},
		{"wildcard on restricted token", func() model.Token {
			tk := base
			tk.Indices = []model.IndexUUID{"a"}
			return tk
		}, Request{AppUUID: "app", IndexUUID: "*"}, false},
		{"empty target index", func() model.Token {
			tk := base
			tk.Indices = []model.IndexUUID{"a"}
			return tk
		}, Request{AppUUID: "app"}, true},
		{"endpoint listed", func() model.Token {
			tk := base
			tk.Endpoints = []string{"GET~~/v1/app/indices/"}
			return tk
		}, Request{AppUUID: "app", Verb: "get", Path: "v1/app/indices"}, true},
		{"endpoint pattern", func() model.Token {
			tk := base
			tk.Endpoints = []string{"get~~v1/{app}/indices/{index}/search"}
			return tk
		}, Request{AppUUID: "app", Verb: "GET", Path: "/v1/app/indices/products/search"}, true},
		{"endpoint not listed", func() model.Token {
			tk := base
			tk.Endpoints = []string{"get~~v1/app/indices"}
			return tk
		}, Request{AppUUID: "app", Verb: "DELETE", Path: "/v1/app/indices"}, false},
	}
	for _, tc := range cases {
		got, err := Credentials{}.IsTokenValid(ctx, tc.tok(), tc.req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHTTPReferrers(t *testing.T) {
	tok := model.NewToken("t", "app")
	if ok, _ := (HTTPReferrers{}).IsTokenValid(context.Background(), tok, Request{Referrer: "anything"}); !ok {
		t.Fatal("empty referrers must pass")
	}
	tok.Metadata["http_referrers"] = []any{"shop.example.com"}
	if ok, _ := (HTTPReferrers{}).IsTokenValid(context.Background(), tok, Request{Referrer: ReferrerHost("https://shop.example.com/p/1")}); !ok {
		t.Fatal("listed host must pass")
	}
	if ok, _ := (HTTPReferrers{}).IsTokenValid(context.Background(), tok, Request{Referrer: "evil.example.com"}); ok {
		t.Fatal("unlisted host must fail")
	}
}

func TestSecondsValid(t *testing.T) {
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := model.NewToken("t", "app")
	tok.UpdatedAt = updated

	v := SecondsValid{Now: func() time.Time { return updated.Add(time.Hour) }}
	if ok, _ := v.IsTokenValid(context.Background(), tok, Request{}); !ok {
		t.Fatal("seconds_valid 0 never expires")
	}
	tok.Metadata["seconds_valid"] = 3600
	if ok, _ := v.IsTokenValid(context.Background(), tok, Request{}); !ok {
		t.Fatal("expected valid at the exact deadline")
	}
	v.Now = func() time.Time { return updated.Add(time.Hour + time.Second) }
	if ok, _ := v.IsTokenValid(context.Background(), tok, Request{}); ok {
		t.Fatal("expected expired token")
	}
}
