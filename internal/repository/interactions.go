package repository

import (
	"context"
	"sync"

	"searchgate.io/internal/model"
)

// InteractionStore persists user interactions per application.
type InteractionStore interface {
	AddInteraction(ctx context.Context, app model.AppUUID, in model.Interaction) error
	DeleteAllInteractions(ctx context.Context, app model.AppUUID) error
}

// MemoryInteractions keeps interactions in process.
type MemoryInteractions struct {
	mu    sync.Mutex
	byApp map[model.AppUUID][]model.Interaction
}

func NewMemoryInteractions() *MemoryInteractions {
	return &MemoryInteractions{byApp: make(map[model.AppUUID][]model.Interaction)}
}

func (m *MemoryInteractions) AddInteraction(_ context.Context, app model.AppUUID, in model.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byApp[app] = append(m.byApp[app], in)
	return nil
}

func (m *MemoryInteractions) DeleteAllInteractions(_ context.Context, app model.AppUUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byApp, app)
	return nil
}

// Interactions returns a copy of the interactions of app.
func (m *MemoryInteractions) Interactions(app model.AppUUID) []model.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Interaction(nil), m.byApp[app]...)
}
