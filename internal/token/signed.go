package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
)

const signedIssuer = "searchgate"

var errMissingSecret = errors.New("token signing secret is not configured")

// SignedClaims embeds a whole token into an HS256 JWT so that it can be verified without
// a storage lookup.
type SignedClaims struct {
	App       string         `json:"app"`
	Indices   []string       `json:"idx,omitempty"`
	Endpoints []string       `json:"end,omitempty"`
	Plugins   []string       `json:"plg,omitempty"`
	Metadata  map[string]any `json:"md,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues a signed token. ttl <= 0 issues a token without expiry.
func Sign(secret []byte, t model.Token, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errMissingSecret
	}
	if t.AppUUID.ComposeUUID() == "" {
		return "", errors.New("app uuid is required")
	}
	id := t.UUID.ComposeUUID()
	if id == "" {
		id = ids.New()
	}
	now := time.Now().UTC()
	claims := SignedClaims{
		App:       t.AppUUID.ComposeUUID(),
		Endpoints: t.Endpoints,
		Plugins:   t.Plugins,
		Metadata:  t.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   signedIssuer,
			Subject:  t.AppUUID.ComposeUUID(),
			IssuedAt: jwt.NewNumericDate(now),
			ID:       id,
		},
	}
	for _, idx := range t.Indices {
		claims.Indices = append(claims.Indices, string(idx))
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SignedLocator resolves tokens that are themselves signed JWTs.
type SignedLocator struct {
	secret []byte
}

// NewSignedLocator returns a locator verifying HS256 signatures with secret.
func NewSignedLocator(secret string) *SignedLocator {
	return &SignedLocator{secret: []byte(strings.TrimSpace(secret))}
}

func (s *SignedLocator) IsValid() bool { return s != nil && len(s.secret) > 0 }

// TokenByUUID returns nil for values that are not JWTs, so other locators get a chance.
// A JWT that fails verification is rejected outright.
func (s *SignedLocator) TokenByUUID(_ context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	raw := uuid.ComposeUUID()
	if strings.Count(raw, ".") != 2 {
		return nil, nil
	}
	parsed, err := jwt.ParseWithClaims(raw, &SignedClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, model.ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(signedIssuer))
	if err != nil {
		return nil, model.NewInvalidToken(model.TokenUUID(shorten(raw)), "signature")
	}
	claims, ok := parsed.Claims.(*SignedClaims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, model.NewInvalidToken(model.TokenUUID(shorten(raw)), "claims")
	}
	if claims.App != app.ComposeUUID() {
		return nil, nil
	}
	t := model.NewToken(model.TokenUUID(claims.ID), model.AppUUID(claims.App))
	t.Endpoints = claims.Endpoints
	t.Plugins = claims.Plugins
	if claims.Metadata != nil {
		t.Metadata = claims.Metadata
	}
	for _, idx := range claims.Indices {
		t.Indices = append(t.Indices, model.IndexUUID(idx))
	}
	if claims.IssuedAt != nil {
		t.CreatedAt = claims.IssuedAt.Time
		t.UpdatedAt = claims.IssuedAt.Time
	}
	return &t, nil
}

func shorten(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}
