// Package consumer moves commands and domain events through a queue backend and runs the
// consumer loops that execute them, including the pause/resume broadcast used to bracket
// exclusive commands.
package consumer

import (
	"context"
	"fmt"
	"sort"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/queue"
	"searchgate.io/internal/stream"
)

// Type is a logical queue type.
type Type string

const (
	TypeCommand     Type = "command"
	TypeDomainEvent Type = "domain-event"
)

// ParseType accepts the names used on the wire and in the CLI.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeCommand, TypeDomainEvent:
		return Type(s), true
	case "commands":
		return TypeCommand, true
	case "domain_events", "domain-events", "domain_event":
		return TypeDomainEvent, true
	}
	return "", false
}

// Names are the backend names of a queue type: its work queue and its busy channel.
type Names struct {
	Queue string `yaml:"queue"`
	Busy  string `yaml:"busy"`
}

// DefaultNames returns the built-in queue names.
func DefaultNames() map[Type]Names {
	return map[Type]Names{
		TypeCommand:     {Queue: "searchgate_commands", Busy: "searchgate_commands_busy"},
		TypeDomainEvent: {Queue: "searchgate_domain_events", Busy: "searchgate_domain_events_busy"},
	}
}

// Manager enqueues work and broadcasts busy flags. A Manager without a backend reports
// every operation as unsupported.
type Manager struct {
	backend queue.Backend
	names   map[Type]Names
	stream  *stream.Stream
}

// Option customises a Manager.
type Option func(*Manager)

// WithNames overrides queue names per type.
func WithNames(names map[Type]Names) Option {
	return func(m *Manager) {
		for t, n := range names {
			if n.Queue != "" && n.Busy != "" {
				m.names[t] = n
			}
		}
	}
}

// WithStream publishes consumer status events to s.
func WithStream(s *stream.Stream) Option {
	return func(m *Manager) { m.stream = s }
}

// NewManager builds a manager over backend, which may be nil.
func NewManager(backend queue.Backend, opts ...Option) *Manager {
	m := &Manager{backend: backend, names: DefaultNames()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend returns the configured backend or nil.
func (m *Manager) Backend() queue.Backend { return m.backend }

// Stream returns the status stream or nil.
func (m *Manager) Stream() *stream.Stream { return m.stream }

// Names returns the backend names of t.
func (m *Manager) Names(t Type) (Names, bool) {
	n, ok := m.names[t]
	return n, ok
}

// Types returns the known queue types in stable order.
func (m *Manager) Types() []Type {
	out := make([]Type, 0, len(m.names))
	for t := range m.names {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) lookup(t Type) (Names, error) {
	if m.backend == nil {
		return Names{}, model.ErrQueuePluginMissing
	}
	n, ok := m.names[t]
	if !ok {
		return Names{}, fmt.Errorf("unknown queue type %q", t)
	}
	return n, nil
}

// Enqueue pushes a serialised payload onto the queue of t.
func (m *Manager) Enqueue(ctx context.Context, t Type, payload []byte) error {
	n, err := m.lookup(t)
	if err != nil {
		return err
	}
	if err := m.backend.Push(ctx, n.Queue, payload); err != nil {
		obs.CountQueue(string(t), "error")
		return model.Transport("enqueue "+string(t), err)
	}
	obs.CountQueue(string(t), "enqueued")
	return nil
}

// EnqueueCommand encodes msg and pushes it onto the command queue.
func (m *Manager) EnqueueCommand(ctx context.Context, msg bus.Message) (bus.Envelope, error) {
	env, err := bus.Encode(msg)
	if err != nil {
		return bus.Envelope{}, err
	}
	if err := m.Enqueue(ctx, TypeCommand, env.Data); err != nil {
		return bus.Envelope{}, err
	}
	return env, nil
}

// Pause broadcasts busy=true to every consumer of the given types.
func (m *Manager) Pause(ctx context.Context, types ...Type) error {
	return m.broadcast(ctx, true, types)
}

// Resume broadcasts busy=false to every consumer of the given types.
func (m *Manager) Resume(ctx context.Context, types ...Type) error {
	return m.broadcast(ctx, false, types)
}

func (m *Manager) broadcast(ctx context.Context, busy bool, types []Type) error {
	for _, t := range types {
		n, err := m.lookup(t)
		if err != nil {
			return err
		}
		if err := m.backend.Broadcast(ctx, n.Busy, busy); err != nil {
			return model.Transport("broadcast "+string(t), err)
		}
		obs.Info("busy broadcast", map[string]any{"queue_type": string(t), "busy": busy})
	}
	return nil
}

// QueueSize returns the depth of t's work queue. ok is false when no backend is configured,
// the type is unknown, or the backend cannot report sizes.
func (m *Manager) QueueSize(ctx context.Context, t Type) (int, bool, error) {
	if m.backend == nil {
		return 0, false, nil
	}
	n, known := m.names[t]
	if !known {
		return 0, false, nil
	}
	size, ok, err := m.backend.Depth(ctx, n.Queue)
	if err != nil {
		return 0, false, model.Transport("depth "+string(t), err)
	}
	return size, ok, nil
}

// Adapter values for commands and domain events.
const (
	AdapterInline  = "inline"
	AdapterEnqueue = "enqueue"
	AdapterIgnore  = "ignore"
)

// CheckQueuesPlugin fails when any adapter enqueues but no backend is available.
// It runs once at boot.
func CheckQueuesPlugin(backend queue.Backend, adapters ...string) error {
	for _, a := range adapters {
		if a == AdapterEnqueue && backend == nil {
			return model.ErrQueuePluginMissing
		}
	}
	return nil
}
