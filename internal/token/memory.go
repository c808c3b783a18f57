package token

import (
	"context"
	"sort"
	"sync"

	"searchgate.io/internal/model"
)

// MemoryRepository keeps tokens in process. It is a Locator, Provider and Writer.
type MemoryRepository struct {
	mu     sync.RWMutex
	tokens map[model.AppUUID]map[model.TokenUUID]model.Token
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[model.AppUUID]map[model.TokenUUID]model.Token)}
}

func (m *MemoryRepository) IsValid() bool { return m != nil }

func (m *MemoryRepository) TokenByUUID(_ context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[app][uuid]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryRepository) TokensByAppUUID(_ context.Context, app model.AppUUID) ([]model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Token, 0, len(m.tokens[app]))
	for _, t := range m.tokens[app] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (m *MemoryRepository) PutToken(_ context.Context, t model.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byApp, ok := m.tokens[t.AppUUID]
	if !ok {
		byApp = make(map[model.TokenUUID]model.Token)
		m.tokens[t.AppUUID] = byApp
	}
	byApp[t.UUID] = t
	return nil
}

func (m *MemoryRepository) DeleteToken(_ context.Context, app model.AppUUID, uuid model.TokenUUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens[app], uuid)
	return nil
}

func (m *MemoryRepository) DeleteTokens(_ context.Context, app model.AppUUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, app)
	return nil
}
