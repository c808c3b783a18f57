package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"searchgate.io/internal/obs"
)

// ErrNoHandler is returned when a variant has no registered handler.
var ErrNoHandler = errors.New("bus: no handler registered")

// Handler executes one message variant.
type Handler interface {
	Handle(ctx context.Context, msg Message) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, msg Message) (any, error) { return f(ctx, msg) }

// Next continues the chain.
type Next func(ctx context.Context, msg Message) (any, error)

// Middleware intercepts messages before their handler. It either calls next, possibly with
// a modified copy of the message, or returns its own result.
type Middleware interface {
	Name() string
	// Subscribes lists the variants the middleware applies to. Nil means all.
	Subscribes() []Variant
	Execute(ctx context.Context, msg Message, next Next) (any, error)
}

// Bus is a single typed dispatcher. Wiring (Register, Use) happens before the first
// Dispatch; after that the chain is frozen for the life of the process.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[Variant]Handler
	middleware []Middleware
	chain      Next
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Variant]Handler)}
}

// Register binds a handler to a variant. Binding a variant twice is a wiring bug and panics.
func (b *Bus) Register(v Variant, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chain != nil {
		panic("bus: register after seal")
	}
	if _, ok := b.handlers[v]; ok {
		panic(fmt.Sprintf("bus: handler for %s already registered", v))
	}
	b.handlers[v] = h
}

// Use appends middleware in execution order.
func (b *Bus) Use(mws ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chain != nil {
		panic("bus: use after seal")
	}
	b.middleware = append(b.middleware, mws...)
}

// Seal composes the chain once. Dispatch seals implicitly.
func (b *Bus) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealLocked()
}

func (b *Bus) sealLocked() {
	if b.chain != nil {
		return
	}
	handlers := make(map[Variant]Handler, len(b.handlers))
	for v, h := range b.handlers {
		handlers[v] = h
	}
	next := Next(func(ctx context.Context, msg Message) (any, error) {
		h, ok := handlers[msg.Variant()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Variant())
		}
		return h.Handle(ctx, msg)
	})
	for i := len(b.middleware) - 1; i >= 0; i-- {
		next = wrap(b.middleware[i], next)
	}
	b.chain = next
}

func wrap(mw Middleware, next Next) Next {
	subs := mw.Subscribes()
	if subs == nil {
		return func(ctx context.Context, msg Message) (any, error) {
			return mw.Execute(ctx, msg, next)
		}
	}
	set := make(map[Variant]struct{}, len(subs))
	for _, v := range subs {
		set[v] = struct{}{}
	}
	return func(ctx context.Context, msg Message) (any, error) {
		if _, ok := set[msg.Variant()]; !ok {
			return next(ctx, msg)
		}
		return mw.Execute(ctx, msg, next)
	}
}

// Dispatch runs msg through the chain. Errors propagate unchanged.
func (b *Bus) Dispatch(ctx context.Context, msg Message) (any, error) {
	b.mu.RLock()
	chain := b.chain
	b.mu.RUnlock()
	if chain == nil {
		b.Seal()
		b.mu.RLock()
		chain = b.chain
		b.mu.RUnlock()
	}

	start := time.Now()
	res, err := chain(ctx, msg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	obs.ObserveDispatch(string(msg.Variant()), outcome, time.Since(start))
	return res, err
}

// Middleware returns middleware names in chain order.
func (b *Bus) Middleware() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.middleware))
	for _, mw := range b.middleware {
		names = append(names, mw.Name())
	}
	return names
}

// Handles reports whether a handler is bound to v.
func (b *Bus) Handles(v Variant) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[v]
	return ok
}

// Dispatcher is what callers of the bus depend on.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) (any, error)
}
