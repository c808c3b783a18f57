package handler

import (
	"context"
	"fmt"
	"runtime"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/model"
)

// Component status values in a HealthReport.
const (
	StatusGreen = "green"
	StatusRed   = "red"
)

// HealthReport answers CheckHealth. Plugins may add entries to Status.
type HealthReport struct {
	Healthy bool              `json:"healthy"`
	Status  map[string]string `json:"status"`
	Info    map[string]any    `json:"info"`
	Process map[string]any    `json:"process"`
	Queues  map[string]int    `json:"queues,omitempty"`
}

// Pinger is implemented by index stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (h *handlers) storeStatus(ctx context.Context) string {
	p, ok := h.Repo.Store().(Pinger)
	if !ok {
		return StatusGreen
	}
	if err := p.Ping(ctx); err != nil {
		return StatusRed
	}
	return StatusGreen
}

func (h *handlers) checkHealth(ctx context.Context, m *bus.CheckHealth) (any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	report := &HealthReport{
		Status: map[string]string{"index_store": h.storeStatus(ctx)},
		Info: map[string]any{
			"version": h.Version,
			"plugins": append([]string(nil), h.Plugins...),
		},
		Process: map[string]any{"memory_used": mem.Alloc},
	}
	if h.Consumers != nil && h.Consumers.Backend() != nil {
		report.Status["queue"] = StatusGreen
		report.Queues = map[string]int{}
		for _, t := range h.Consumers.Types() {
			size, ok, err := h.Consumers.QueueSize(ctx, t)
			if err != nil {
				report.Status["queue"] = StatusRed
				continue
			}
			if ok {
				report.Queues[string(t)] = size
			}
		}
	}
	report.Healthy = Healthy(report)
	return report, nil
}

// Healthy reports whether every component is green.
func Healthy(r *HealthReport) bool {
	for _, s := range r.Status {
		if s != StatusGreen {
			return false
		}
	}
	return true
}

func (h *handlers) ping(ctx context.Context, m *bus.Ping) (any, error) {
	return h.storeStatus(ctx) == StatusGreen, nil
}

func (h *handlers) addInteraction(ctx context.Context, m *bus.AddInteraction) (any, error) {
	ref := m.Reference()
	if h.Interactions == nil {
		return nil, fmt.Errorf("%w: interactions store", model.ErrResourceNotAvailable)
	}
	if err := h.Interactions.AddInteraction(ctx, ref.AppUUID, m.Interaction); err != nil {
		return nil, err
	}
	h.publish(ctx, model.EventInteractionWasAdded, ref, map[string]any{
		"user": m.Interaction.User, "item_uuid": m.Interaction.Item.ComposeUUID(), "weight": m.Interaction.Weight,
	})
	return nil, nil
}

func (h *handlers) deleteAllInteractions(ctx context.Context, m *bus.DeleteAllInteractions) (any, error) {
	if h.Interactions == nil {
		return nil, fmt.Errorf("%w: interactions store", model.ErrResourceNotAvailable)
	}
	return nil, h.Interactions.DeleteAllInteractions(ctx, m.Reference().AppUUID)
}

func (h *handlers) createEventsIndex(ctx context.Context, m *bus.CreateEventsIndex) (any, error) {
	if err := h.Repo.CreateEventsIndex(ctx, m.Reference().AppUUID, m.Config); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "events_index.created", nil)
	return nil, nil
}

func (h *handlers) deleteEventsIndex(ctx context.Context, m *bus.DeleteEventsIndex) (any, error) {
	if err := h.Repo.DeleteEventsIndex(ctx, m.Reference().AppUUID); err != nil {
		return nil, err
	}
	h.audit(ctx, m, "events_index.deleted", nil)
	return nil, nil
}

// EventsResult answers QueryEvents.
type EventsResult struct {
	TotalHits uint64              `json:"total_hits"`
	Events    []model.DomainEvent `json:"events"`
}

func (h *handlers) queryEvents(ctx context.Context, m *bus.QueryEvents) (any, error) {
	evts, total, err := h.Repo.QueryEvents(ctx, m.Reference().AppUUID, model.EventFilter{
		Name: m.Name, From: m.From, To: m.To, Length: m.Length, Offset: m.Offset,
	})
	if err != nil {
		return nil, err
	}
	return EventsResult{TotalHits: total, Events: evts}, nil
}

func (h *handlers) consumerTypes(raw []string) ([]consumer.Type, error) {
	if h.Consumers == nil {
		return nil, model.ErrQueuePluginMissing
	}
	if len(raw) == 0 {
		return h.Consumers.Types(), nil
	}
	out := make([]consumer.Type, 0, len(raw))
	for _, r := range raw {
		t, ok := consumer.ParseType(r)
		if !ok {
			return nil, fmt.Errorf("%w: unknown consumer type %q", model.ErrInvalidFormat, r)
		}
		out = append(out, t)
	}
	return out, nil
}

func (h *handlers) pauseConsumers(ctx context.Context, m *bus.PauseConsumers) (any, error) {
	types, err := h.consumerTypes(m.Types)
	if err != nil {
		return nil, err
	}
	return nil, h.Consumers.Pause(ctx, types...)
}

func (h *handlers) resumeConsumers(ctx context.Context, m *bus.ResumeConsumers) (any, error) {
	types, err := h.consumerTypes(m.Types)
	if err != nil {
		return nil, err
	}
	return nil, h.Consumers.Resume(ctx, types...)
}

