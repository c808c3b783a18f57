package consumer

import (
	"context"
	"fmt"

	"searchgate.io/internal/audit"
	"searchgate.io/internal/bus"
	"searchgate.io/internal/obs"
)

// Locker serialises exclusive commands across processes. It strengthens the busy
// broadcast, which a consumer joining mid-flight can miss.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ExclusiveLockKey is the lock taken around exclusive commands.
const ExclusiveLockKey = "searchgate_exclusive_command"

// CommandProcessor decodes command envelopes and dispatches them. Exclusive commands run
// between a pause and a resume broadcast on the command type.
type CommandProcessor struct {
	Dispatcher bus.Dispatcher
	Manager    *Manager
	Locker     Locker
}

func (p *CommandProcessor) Process(ctx context.Context, payload []byte) (string, error) {
	msg, env, err := bus.Decode(payload)
	if err != nil {
		return string(env.Class), err
	}
	label := string(msg.Variant())
	ctx = audit.WithEnvelopeID(ctx, env.ID)

	if !bus.IsExclusive(msg) {
		_, err := p.Dispatcher.Dispatch(ctx, msg)
		return label, err
	}

	if p.Locker != nil {
		unlock, err := p.Locker.Lock(ctx, ExclusiveLockKey)
		if err != nil {
			return label, fmt.Errorf("exclusive lock: %w", err)
		}
		defer unlock()
	}

	if err := p.Manager.Pause(ctx, TypeCommand); err != nil {
		return label, err
	}
	defer func() {
		if err := p.Manager.Resume(context.WithoutCancel(ctx), TypeCommand); err != nil {
			obs.Error("resume after exclusive command failed", map[string]any{
				"variant": label, "envelope_id": env.ID, "error": err.Error(),
			})
		}
	}()

	_, err = p.Dispatcher.Dispatch(ctx, msg)
	return label, err
}
