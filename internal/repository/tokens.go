package repository

import (
	"context"
	"fmt"
	"time"

	"searchgate.io/internal/model"
	"searchgate.io/internal/token"
)

// TokenStore is a writable token source.
type TokenStore interface {
	token.Provider
	token.Writer
}

// Invalidator drops cached tokens after a write.
type Invalidator interface {
	Invalidate(app model.AppUUID, uuid model.TokenUUID)
	InvalidateApp(app model.AppUUID)
}

// TokenRepository manages the tokens of an application.
type TokenRepository struct {
	store TokenStore
	cache Invalidator
	now   func() time.Time
}

// NewTokenRepository wraps store. cache may be nil.
func NewTokenRepository(store TokenStore, cache Invalidator) *TokenRepository {
	return &TokenRepository{store: store, cache: cache, now: time.Now}
}

// AddToken stores t under app and returns it as stored. The token must
// belong to app. UpdatedAt is always server time so callers cannot move the
// seconds_valid window; CreatedAt is kept when set.
func (r *TokenRepository) AddToken(ctx context.Context, app model.AppUUID, t model.Token) (model.Token, error) {
	if t.UUID.ComposeUUID() == "" {
		return model.Token{}, fmt.Errorf("%w: token uuid is required", model.ErrInvalidFormat)
	}
	if t.AppUUID == "" {
		t.AppUUID = app
	}
	if t.AppUUID != app {
		return model.Token{}, fmt.Errorf("%w: token belongs to app %q", model.ErrInvalidFormat, t.AppUUID)
	}
	now := r.now().UTC()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() || t.CreatedAt.After(now) {
		t.CreatedAt = now
	}
	if err := r.store.PutToken(ctx, t); err != nil {
		return model.Token{}, err
	}
	if r.cache != nil {
		r.cache.Invalidate(app, t.UUID)
	}
	return t, nil
}

func (r *TokenRepository) DeleteToken(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) error {
	if err := r.store.DeleteToken(ctx, app, uuid); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Invalidate(app, uuid)
	}
	return nil
}

func (r *TokenRepository) DeleteTokens(ctx context.Context, app model.AppUUID) error {
	if err := r.store.DeleteTokens(ctx, app); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.InvalidateApp(app)
	}
	return nil
}

func (r *TokenRepository) Tokens(ctx context.Context, app model.AppUUID) ([]model.Token, error) {
	return r.store.TokensByAppUUID(ctx, app)
}
