// Package audit writes the audit trail of token and index lifecycle changes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	envelopeIDKey
)

// WithRequestID attaches the HTTP request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

// WithEnvelopeID attaches the id of the queued envelope a consumer is handling.
func WithEnvelopeID(ctx context.Context, envelopeID string) context.Context {
	return withValue(ctx, envelopeIDKey, envelopeID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if v = strings.TrimSpace(v); v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// RequestIDFromContext returns the id attached with WithRequestID.
func RequestIDFromContext(ctx context.Context) string { return value(ctx, requestIDKey) }

// EnvelopeIDFromContext returns the id attached with WithEnvelopeID.
func EnvelopeIDFromContext(ctx context.Context) string { return value(ctx, envelopeIDKey) }

// Record is one lifecycle change.
type Record struct {
	Event  string
	Ref    model.RepositoryReference
	Token  model.Token
	Fields map[string]any
}

// Log writes r as a JSON line. Commands replayed from the queue carry envelope_id instead
// of request_id.
func Log(ctx context.Context, r Record) error {
	event := strings.TrimSpace(r.Event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    event,
		"app_uuid": string(r.Ref.AppUUID),
	}
	if r.Ref.IndexUUID != "" {
		entry["index_uuid"] = string(r.Ref.IndexUUID)
	}
	if r.Token.UUID != "" {
		entry["token_uuid"] = string(r.Token.UUID)
	}
	if r.Token.IsGod() {
		entry["god"] = true
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if eid := EnvelopeIDFromContext(ctx); eid != "" {
		entry["envelope_id"] = eid
	}
	if len(r.Fields) > 0 {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		entry["fields"] = fields
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
