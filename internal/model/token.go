package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultTokenTTL is the cache lifetime, in seconds, of a token without explicit ttl.
const DefaultTokenTTL = 60

// Token grants scoped access to an application.
type Token struct {
	UUID      TokenUUID      `json:"uuid"`
	AppUUID   AppUUID        `json:"app_uuid"`
	Indices   []IndexUUID    `json:"indices,omitempty"`
	Endpoints []string       `json:"endpoints,omitempty"`
	Plugins   []string       `json:"plugins,omitempty"`
	TTL       int            `json:"ttl"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	god bool
}

// NewToken builds a token with default ttl and timestamps.
func NewToken(uuid TokenUUID, app AppUUID) Token {
	now := time.Now().UTC()
	return Token{
		UUID:      uuid,
		AppUUID:   app,
		TTL:       DefaultTokenTTL,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewGodToken builds a validator-bypassing token for trusted local callers.
// The god flag is not serialised, so a god token never leaves the process as one.
func NewGodToken(uuid TokenUUID, app AppUUID) Token {
	t := NewToken(uuid, app)
	t.god = true
	return t
}

// IsGod reports whether the token was built with NewGodToken.
func (t Token) IsGod() bool { return t.god }

// MetadataValue returns a metadata entry.
func (t Token) MetadataValue(key string) (any, bool) {
	if t.Metadata == nil {
		return nil, false
	}
	v, ok := t.Metadata[key]
	return v, ok
}

// MetadataStrings reads a list of strings, accepting []string, []any or a single string.
func (t Token) MetadataStrings(key string) []string {
	v, ok := t.MetadataValue(key)
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MetadataInt reads an integer metadata entry, returning def when absent or malformed.
func (t Token) MetadataInt(key string, def int) int {
	v, ok := t.MetadataValue(key)
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return def
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// MetadataMap reads a nested object, returning nil when absent.
func (t Token) MetadataMap(key string) map[string]any {
	v, ok := t.MetadataValue(key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// HasPlugin reports whether the token enables the named plugin.
func (t Token) HasPlugin(name string) bool {
	for _, p := range t.Plugins {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
