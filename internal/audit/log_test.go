package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	err := Log(ctx, Record{
		Event:  "token.added",
		Ref:    model.NewRepositoryReference("shop", ""),
		Token:  model.NewToken("tok-42", "shop"),
		Fields: map[string]any{"token": "tok-43"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	entry := decodeEntry(t, buf)
	if entry["type"] != "audit" || entry["event"] != "token.added" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["app_uuid"] != "shop" || entry["token_uuid"] != "tok-42" {
		t.Fatalf("unexpected token fields: %v %v", entry["app_uuid"], entry["token_uuid"])
	}
	if _, ok := entry["index_uuid"]; ok {
		t.Fatalf("app level record should not carry index_uuid: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["token"] != "tok-43" {
		t.Fatalf("unexpected fields: %v", entry["fields"])
	}
}

func TestLogFromConsumer(t *testing.T) {
	buf := captureLog(t)

	ctx := WithEnvelopeID(context.Background(), "01HZX")
	err := Log(ctx, Record{
		Event: "index.deleted",
		Ref:   model.NewRepositoryReference("shop", "products"),
		Token: model.NewGodToken("god", "shop"),
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	entry := decodeEntry(t, buf)
	if entry["envelope_id"] != "01HZX" || entry["request_id"] != nil {
		t.Fatalf("unexpected ids: %v", entry)
	}
	if entry["index_uuid"] != "products" || entry["god"] != true {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["fields"]; ok {
		t.Fatalf("empty fields should be omitted: %v", entry)
	}
}

func TestLogRequiresEvent(t *testing.T) {
	if err := Log(context.Background(), Record{Event: "  "}); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestBlankIDsAreNotAttached(t *testing.T) {
	ctx := WithRequestID(context.Background(), " ")
	ctx = WithEnvelopeID(ctx, "")
	if RequestIDFromContext(ctx) != "" || EnvelopeIDFromContext(ctx) != "" {
		t.Fatal("blank ids should be ignored")
	}
}
