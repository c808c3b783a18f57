package token

import (
	"context"
	"fmt"

	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

// Manager authorizes requests against located tokens and a validator chain.
type Manager struct {
	locators   Locators
	validators []Validator
}

// Option configures Manager.
type Option func(*Manager)

// WithLocators appends locators in lookup order.
func WithLocators(ls ...Locator) Option {
	return func(m *Manager) { m.locators = append(m.locators, ls...) }
}

// WithValidators appends validators in evaluation order.
func WithValidators(vs ...Validator) Option {
	return func(m *Manager) { m.validators = append(m.validators, vs...) }
}

// NewManager builds a Manager. Order of locators and validators is fixed after construction.
func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validators returns the names of the configured validators in order.
func (m *Manager) Validators() []string {
	names := make([]string, 0, len(m.validators))
	for _, v := range m.validators {
		names = append(names, v.Name())
	}
	return names
}

// CheckToken returns the token when it resolves under req.AppUUID and every validator
// approves. God tokens skip validation. Rejections wrap model.ErrInvalidToken; counter or
// locator backend failures are returned as they are.
func (m *Manager) CheckToken(ctx context.Context, req Request, uuid model.TokenUUID) (model.Token, error) {
	if uuid.ComposeUUID() == "" {
		obs.CountTokenRejection("missing")
		return model.Token{}, model.NewInvalidToken(uuid, "missing token")
	}
	t, err := m.locators.TokenByUUID(ctx, req.AppUUID, uuid)
	if err != nil {
		return model.Token{}, fmt.Errorf("locate token: %w", err)
	}
	if t == nil {
		obs.CountTokenRejection("not_found")
		return model.Token{}, model.NewInvalidToken(uuid, "not found")
	}
	if t.IsGod() {
		return *t, nil
	}
	if t.AppUUID.ComposeUUID() != req.AppUUID.ComposeUUID() {
		obs.CountTokenRejection("app_mismatch")
		return model.Token{}, model.NewInvalidToken(uuid, "app mismatch")
	}
	for _, v := range m.validators {
		ok, err := v.IsTokenValid(ctx, *t, req)
		if err != nil {
			return model.Token{}, fmt.Errorf("validator %s: %w", v.Name(), err)
		}
		if !ok {
			obs.CountTokenRejection(v.Name())
			return model.Token{}, model.NewInvalidToken(uuid, v.Name())
		}
	}
	return *t, nil
}
