package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/health":                               "/health",
		"/v1/app1/indices":                      "/v1/:app/indices",
		"/v1/app1/indices/products":             "/v1/:app/indices/:index",
		"/v1/app1/indices/products/items":       "/v1/:app/indices/:index/items",
		"/v1/app1/indices/products/search?q=x":  "/v1/:app/indices/:index/search",
		"/v1/app1/tokens/abc":                   "/v1/:app/tokens/:token",
		"/v1/app1/interactions":                 "/v1/:app/interactions",
		"/v1/consumers/pause":                   "/v1/consumers/pause",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentPassesThrough(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1/app/indices/idx", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
}

func TestLogWritesJSONLine(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	Warn("consumer paused", map[string]any{"type": "command"})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "consumer paused" || entry["type"] != "command" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts")
	}
}

func TestSetLevelDropsLowerEntries(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)
	defer func() { _ = SetLevel("info") }()

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	Info("dropped", nil)
	Error("kept", nil)
	if got := strings.Count(buf.String(), "\n"); got != 1 || !strings.Contains(buf.String(), `"msg":"kept"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
