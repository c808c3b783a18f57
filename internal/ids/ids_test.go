package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	ts, ok := Time(a)
	if !ok {
		t.Fatalf("expected parsable id %s", a)
	}
	if time.Since(ts) > time.Minute {
		t.Fatalf("unexpected timestamp %v", ts)
	}
}

func TestNewTokenUUID(t *testing.T) {
	id := NewTokenUUID()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected v4, got %d", parsed.Version())
	}
}
