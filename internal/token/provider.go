package token

import (
	"context"

	"searchgate.io/internal/model"
)

// Provider lists tokens of an application.
type Provider interface {
	TokensByAppUUID(ctx context.Context, app model.AppUUID) ([]model.Token, error)
}

// Providers merges the tokens of every provider, first occurrence of a uuid wins.
type Providers []Provider

func (ps Providers) TokensByAppUUID(ctx context.Context, app model.AppUUID) ([]model.Token, error) {
	seen := make(map[model.TokenUUID]struct{})
	var out []model.Token
	for _, p := range ps {
		if p == nil {
			continue
		}
		tokens, err := p.TokensByAppUUID(ctx, app)
		if err != nil {
			return nil, err
		}
		for _, t := range tokens {
			if _, ok := seen[t.UUID]; ok {
				continue
			}
			seen[t.UUID] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}

// Writer persists tokens. Tokens are replaced as a whole, never patched.
type Writer interface {
	PutToken(ctx context.Context, t model.Token) error
	DeleteToken(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) error
	DeleteTokens(ctx context.Context, app model.AppUUID) error
}
