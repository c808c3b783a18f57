package token

import (
	"context"

	"searchgate.io/internal/model"
)

type tokenContextKey struct{}

// ContextWithToken attaches the authorized token to the context.
func ContextWithToken(ctx context.Context, t model.Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, &t)
}

// FromContext returns the token previously attached with ContextWithToken.
func FromContext(ctx context.Context) (model.Token, bool) {
	if ctx == nil {
		return model.Token{}, false
	}
	v, ok := ctx.Value(tokenContextKey{}).(*model.Token)
	if !ok || v == nil {
		return model.Token{}, false
	}
	return *v, true
}
