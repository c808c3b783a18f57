// Package handler binds one handler to every bus variant.
package handler

import (
	"context"
	"fmt"

	"searchgate.io/internal/audit"
	"searchgate.io/internal/bus"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/events"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/repository"
)

// Deps are the collaborators of the handlers. Consumers and Events may be nil.
type Deps struct {
	Repo         *repository.Repository
	Tokens       *repository.TokenRepository
	Interactions repository.InteractionStore
	Events       *events.Publisher
	Consumers    *consumer.Manager
	Version      string
	Plugins      []string
}

type handlers struct {
	Deps
}

// Register binds every variant of b.
func Register(b *bus.Bus, d Deps) {
	h := &handlers{Deps: d}

	bind(b, bus.VariantAddToken, h.addToken)
	bind(b, bus.VariantDeleteToken, h.deleteToken)
	bind(b, bus.VariantDeleteTokens, h.deleteTokens)
	bind(b, bus.VariantGetTokens, h.getTokens)

	bind(b, bus.VariantCreateIndex, h.createIndex)
	bind(b, bus.VariantDeleteIndex, h.deleteIndex)
	bind(b, bus.VariantResetIndex, h.resetIndex)
	bind(b, bus.VariantConfigureIndex, h.configureIndex)
	bind(b, bus.VariantCheckIndex, h.checkIndex)
	bind(b, bus.VariantGetIndices, h.getIndices)

	bind(b, bus.VariantIndexItems, h.indexItems)
	bind(b, bus.VariantDeleteItems, h.deleteItems)
	bind(b, bus.VariantUpdateItems, h.updateItems)
	bind(b, bus.VariantQuery, h.query)

	bind(b, bus.VariantCheckHealth, h.checkHealth)
	bind(b, bus.VariantPing, h.ping)

	bind(b, bus.VariantAddInteraction, h.addInteraction)
	bind(b, bus.VariantDeleteAllInteractions, h.deleteAllInteractions)

	bind(b, bus.VariantCreateEventsIndex, h.createEventsIndex)
	bind(b, bus.VariantDeleteEventsIndex, h.deleteEventsIndex)
	bind(b, bus.VariantQueryEvents, h.queryEvents)

	bind(b, bus.VariantPauseConsumers, h.pauseConsumers)
	bind(b, bus.VariantResumeConsumers, h.resumeConsumers)
}

func bind[M bus.Message](b *bus.Bus, v bus.Variant, fn func(context.Context, M) (any, error)) {
	b.Register(v, bus.HandlerFunc(func(ctx context.Context, msg bus.Message) (any, error) {
		m, ok := msg.(M)
		if !ok {
			return nil, fmt.Errorf("%w: %s handler got %T", model.ErrInvalidFormat, v, msg)
		}
		return fn(ctx, m)
	}))
}

// publish hands an event to the publisher. The state change already happened, so a
// publishing failure is logged rather than returned.
func (h *handlers) publish(ctx context.Context, name string, ref model.RepositoryReference, payload map[string]any) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(ctx, events.New(name, ref, payload)); err != nil {
		obs.Error("publish domain event failed", map[string]any{
			"event": name, "ref": ref.Compose(), "error": err.Error(),
		})
	}
}

func (h *handlers) audit(ctx context.Context, msg bus.Message, event string, fields map[string]any) {
	err := audit.Log(ctx, audit.Record{Event: event, Ref: msg.Reference(), Token: msg.AuthToken(), Fields: fields})
	if err != nil {
		obs.Error("audit failed", map[string]any{"event": event, "error": err.Error()})
	}
}
