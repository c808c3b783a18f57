package events

import (
	"context"

	"searchgate.io/internal/model"
	"searchgate.io/internal/repository"
)

// StoreSubscriber keeps events of applications that created an events index.
type StoreSubscriber struct {
	Repo *repository.Repository
}

func (StoreSubscriber) Name() string { return "events_store" }

func (s StoreSubscriber) Handle(ctx context.Context, e model.DomainEvent) error {
	if e.IndexUUID == repository.EventsIndex {
		return nil
	}
	if !s.Repo.HasEventsIndex(ctx, e.AppUUID) {
		return nil
	}
	return s.Repo.StoreEvent(ctx, e)
}
