package handler

import (
	"context"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
)

func (h *handlers) indexItems(ctx context.Context, m *bus.IndexItems) (any, error) {
	ref := m.Reference()
	if err := h.Repo.AddItems(ctx, ref, m.Items); err != nil {
		return nil, err
	}
	uuids := make([]string, 0, len(m.Items))
	for _, it := range m.Items {
		uuids = append(uuids, it.UUID.ComposeUUID())
	}
	h.publish(ctx, model.EventItemsWereIndexed, ref, map[string]any{"items_uuid": uuids})
	return nil, nil
}

func (h *handlers) deleteItems(ctx context.Context, m *bus.DeleteItems) (any, error) {
	ref := m.Reference()
	if err := h.Repo.DeleteItems(ctx, ref, m.ItemUUIDs); err != nil {
		return nil, err
	}
	uuids := make([]string, 0, len(m.ItemUUIDs))
	for _, u := range m.ItemUUIDs {
		uuids = append(uuids, u.ComposeUUID())
	}
	h.publish(ctx, model.EventItemsWereDeleted, ref, map[string]any{"items_uuid": uuids})
	return nil, nil
}

func (h *handlers) updateItems(ctx context.Context, m *bus.UpdateItems) (any, error) {
	ref := m.Reference()
	n, err := h.Repo.UpdateItems(ctx, ref, m.Query, m.Changes)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, model.EventItemsWereUpdated, ref, map[string]any{"updated": n})
	return n, nil
}

func (h *handlers) query(ctx context.Context, m *bus.Query) (any, error) {
	return h.Repo.Query(ctx, m.Reference(), m.Query)
}
