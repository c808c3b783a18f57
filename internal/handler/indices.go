package handler

import (
	"context"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
)

func (h *handlers) createIndex(ctx context.Context, m *bus.CreateIndex) (any, error) {
	ref := m.Reference()
	if err := h.Repo.CreateIndex(ctx, ref, m.Config); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "index.created", nil)
	h.publish(ctx, model.EventIndexWasCreated, ref, configPayload(m.Config))
	return nil, nil
}

func (h *handlers) deleteIndex(ctx context.Context, m *bus.DeleteIndex) (any, error) {
	ref := m.Reference()
	if err := h.Repo.DeleteIndex(ctx, ref); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "index.deleted", nil)
	h.publish(ctx, model.EventIndexWasDeleted, ref, nil)
	return nil, nil
}

func (h *handlers) resetIndex(ctx context.Context, m *bus.ResetIndex) (any, error) {
	ref := m.Reference()
	if err := h.Repo.ResetIndex(ctx, ref); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "index.reset", nil)
	h.publish(ctx, model.EventIndexWasReset, ref, nil)
	return nil, nil
}

func (h *handlers) configureIndex(ctx context.Context, m *bus.ConfigureIndex) (any, error) {
	ref := m.Reference()
	if err := h.Repo.ConfigureIndex(ctx, ref, m.Config); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "index.configured", nil)
	h.publish(ctx, model.EventIndexWasConfigured, ref, configPayload(m.Config))
	return nil, nil
}

func (h *handlers) checkIndex(ctx context.Context, m *bus.CheckIndex) (any, error) {
	return h.Repo.CheckIndex(ctx, m.Reference()), nil
}

func (h *handlers) getIndices(ctx context.Context, m *bus.GetIndices) (any, error) {
	return h.Repo.GetIndices(ctx, m.Reference())
}

func configPayload(cfg model.IndexConfig) map[string]any {
	return map[string]any{
		"language": cfg.Language,
		"shards":   cfg.Shards,
		"replicas": cfg.Replicas,
	}
}
