package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"searchgate.io/internal/model"
)

// EventsIndex is the index holding the stored domain events of an application.
const EventsIndex model.IndexUUID = "events"

const eventItemType = "event"

// EventsRef returns the reference of app's events index.
func EventsRef(app model.AppUUID) model.RepositoryReference {
	return model.NewRepositoryReference(app, EventsIndex)
}

func (r *Repository) CreateEventsIndex(ctx context.Context, app model.AppUUID, cfg model.IndexConfig) error {
	return r.store.CreateIndex(ctx, EventsRef(app), cfg)
}

func (r *Repository) DeleteEventsIndex(ctx context.Context, app model.AppUUID) error {
	return r.store.DeleteIndex(ctx, EventsRef(app))
}

// HasEventsIndex reports whether app stores its events.
func (r *Repository) HasEventsIndex(ctx context.Context, app model.AppUUID) bool {
	return r.CheckIndex(ctx, EventsRef(app))
}

// StoreEvent writes e to its application's events index.
func (r *Repository) StoreEvent(ctx context.Context, e model.DomainEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("event payload: %w", err)
	}
	item := model.Item{
		UUID: model.ItemUUID{ID: e.ID, Type: eventItemType},
		Metadata: map[string]any{
			"payload": string(payload),
		},
		IndexedMetadata: map[string]any{
			"name":        e.Name,
			"index_uuid":  string(e.IndexUUID),
			"occurred_on": float64(e.OccurredOn.UnixMilli()),
		},
	}
	return r.store.AddDocuments(ctx, EventsRef(e.AppUUID), []model.Item{item})
}

// QueryEvents reads stored events in the order the store returns them.
func (r *Repository) QueryEvents(ctx context.Context, app model.AppUUID, f model.EventFilter) ([]model.DomainEvent, uint64, error) {
	q := model.QueryMatchAll()
	q.Filters = map[string]model.Filter{}
	if f.Name != "" {
		q.Filters["name"] = model.Filter{Field: "name", Values: []any{f.Name}, ApplicationType: model.FilterMustAll}
	}
	if f.From != nil || f.To != nil {
		q.Filters["occurred_on"] = model.Filter{
			Field:           "occurred_on",
			Values:          []any{millis(f.From), millis(f.To)},
			ApplicationType: model.FilterRange,
		}
	}
	if f.Length > 0 {
		q.Size = f.Length
		q.Page = f.Offset/f.Length + 1
	}

	res, err := r.Query(ctx, EventsRef(app), q)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.DomainEvent, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, eventFromItem(app, it))
	}
	return out, res.TotalHits, nil
}

func millis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return float64(t.UnixMilli())
}

func eventFromItem(app model.AppUUID, it model.Item) model.DomainEvent {
	e := model.DomainEvent{ID: it.UUID.ID, AppUUID: app}
	if name, ok := it.IndexedMetadata["name"].(string); ok {
		e.Name = name
	}
	if idx, ok := it.IndexedMetadata["index_uuid"].(string); ok {
		e.IndexUUID = model.IndexUUID(idx)
	}
	if ms, ok := it.IndexedMetadata["occurred_on"].(float64); ok {
		e.OccurredOn = time.UnixMilli(int64(ms)).UTC()
	}
	if raw, ok := it.Metadata["payload"].(string); ok && raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &e.Payload)
	}
	return e
}
