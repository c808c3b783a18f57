package handler

import (
	"context"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
)

func (h *handlers) addToken(ctx context.Context, m *bus.AddToken) (any, error) {
	ref := m.Reference()
	t := m.NewToken
	if t.UUID.ComposeUUID() == "" {
		t.UUID = model.TokenUUID(ids.NewTokenUUID())
	}
	if t.TTL == 0 {
		t.TTL = model.DefaultTokenTTL
	}
	t, err := h.Tokens.AddToken(ctx, ref.AppUUID, t)
	if err != nil {
		return nil, err
	}
	h.audit(ctx, m, "token.added", map[string]any{"token": string(t.UUID)})
	h.publish(ctx, model.EventTokenWasAdded, ref, map[string]any{"token_uuid": string(t.UUID)})
	return t, nil
}

func (h *handlers) deleteToken(ctx context.Context, m *bus.DeleteToken) (any, error) {
	ref := m.Reference()
	if err := h.Tokens.DeleteToken(ctx, ref.AppUUID, m.TokenUUID); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "token.deleted", map[string]any{"token": string(m.TokenUUID)})
	h.publish(ctx, model.EventTokenWasDeleted, ref, map[string]any{"token_uuid": string(m.TokenUUID)})
	return nil, nil
}

func (h *handlers) deleteTokens(ctx context.Context, m *bus.DeleteTokens) (any, error) {
	ref := m.Reference()
	if err := h.Tokens.DeleteTokens(ctx, ref.AppUUID); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "tokens.deleted", nil)
	h.publish(ctx, model.EventTokensWereDeleted, ref, nil)
	return nil, nil
}

func (h *handlers) getTokens(ctx context.Context, m *bus.GetTokens) (any, error) {
	return h.Tokens.Tokens(ctx, m.Reference().AppUUID)
}
