package token

import (
	"context"
	"strings"

	"searchgate.io/internal/model"
)

// Locator resolves a token uuid into a token.
type Locator interface {
	// IsValid reports whether the locator is usable; invalid locators are skipped.
	IsValid() bool
	// TokenByUUID returns nil without error when the token is unknown.
	TokenByUUID(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error)
}

// Locators is an ordered chain of locators. The first non-nil token wins.
type Locators []Locator

// TokenByUUID walks the chain in order.
func (ls Locators) TokenByUUID(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	for _, l := range ls {
		if l == nil || !l.IsValid() {
			continue
		}
		t, err := l.TokenByUUID(ctx, app, uuid)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// StaticLocator serves tokens declared in configuration.
type StaticLocator struct {
	tokens map[model.TokenUUID]model.Token
}

// NewStaticLocator indexes the given tokens by uuid.
func NewStaticLocator(tokens []model.Token) *StaticLocator {
	m := make(map[model.TokenUUID]model.Token, len(tokens))
	for _, t := range tokens {
		m[model.TokenUUID(t.UUID.ComposeUUID())] = t
	}
	return &StaticLocator{tokens: m}
}

func (s *StaticLocator) IsValid() bool { return s != nil }

func (s *StaticLocator) TokenByUUID(_ context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	t, ok := s.tokens[model.TokenUUID(uuid.ComposeUUID())]
	if !ok || t.AppUUID.ComposeUUID() != app.ComposeUUID() {
		return nil, nil
	}
	return &t, nil
}

func (s *StaticLocator) TokensByAppUUID(_ context.Context, app model.AppUUID) ([]model.Token, error) {
	var out []model.Token
	for _, t := range s.tokens {
		if t.AppUUID.ComposeUUID() == app.ComposeUUID() {
			out = append(out, t)
		}
	}
	return out, nil
}

// ServerTokens are the process-level tokens from configuration.
type ServerTokens struct {
	God      string
	ReadOnly string
	Ping     string
}

// ServerTokensLocator resolves the configured god, read-only and ping tokens for any app.
type ServerTokensLocator struct {
	tokens ServerTokens
}

// NewServerTokensLocator builds the locator; empty values are disabled.
func NewServerTokensLocator(tokens ServerTokens) *ServerTokensLocator {
	return &ServerTokensLocator{tokens: tokens}
}

func (s *ServerTokensLocator) IsValid() bool {
	return s != nil && (s.tokens.God != "" || s.tokens.ReadOnly != "" || s.tokens.Ping != "")
}

func (s *ServerTokensLocator) TokenByUUID(_ context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	id := uuid.ComposeUUID()
	if id == "" {
		return nil, nil
	}
	switch id {
	case strings.TrimSpace(s.tokens.God):
		t := model.NewGodToken(uuid, app)
		return &t, nil
	case strings.TrimSpace(s.tokens.ReadOnly):
		t := model.NewToken(uuid, app)
		t.Endpoints = ReadOnlyEndpoints
		return &t, nil
	case strings.TrimSpace(s.tokens.Ping):
		t := model.NewToken(uuid, app)
		t.Endpoints = PingEndpoints
		return &t, nil
	}
	return nil, nil
}

// Endpoint sets for the read-only and ping server tokens.
var (
	ReadOnlyEndpoints = []string{
		"get~~v1/{app}/indices/{index}/search",
		"post~~v1/{app}/indices/{index}/search",
		"get~~v1/{app}/indices",
		"head~~v1/{app}/indices/{index}",
		"get~~health",
		"head~~",
	}
	PingEndpoints = []string{
		"head~~",
		"get~~health",
	}
)
