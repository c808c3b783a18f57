// Package gateway assembles the token manager, bus, consumer manager, event publisher and
// repository from configuration and routes requests through them.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/config"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/events"
	"searchgate.io/internal/handler"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/plugin"
	"searchgate.io/internal/querymerge"
	"searchgate.io/internal/queue"
	"searchgate.io/internal/repository"
	"searchgate.io/internal/stream"
	"searchgate.io/internal/token"
)

// TokenBackend stores tokens and resolves them.
type TokenBackend interface {
	repository.TokenStore
	token.Locator
}

// Backends are the storage implementations chosen at boot. Queue, Interactions and Locker
// may be nil.
type Backends struct {
	Index        repository.IndexStore
	Tokens       TokenBackend
	Counters     token.CounterStore
	Queue        queue.Backend
	Interactions repository.InteractionStore
	Locker       consumer.Locker
	// Checks are reported by the health plugin.
	Checks map[string]plugin.Check
}

// Queued is the answer to a command pushed onto the command queue.
type Queued struct {
	EnvelopeID string `json:"envelope_id"`
	Class      string `json:"class"`
}

type options struct {
	version    string
	stream     *stream.Stream
	httpClient *http.Client
}

// Option customises New.
type Option func(*options)

// WithVersion sets the version reported by CheckHealth.
func WithVersion(v string) Option { return func(o *options) { o.version = v } }

// WithStream publishes consumer events on s.
func WithStream(s *stream.Stream) Option { return func(o *options) { o.stream = s } }

// WithHTTPClient sets the client used by the interactions plugin.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// Gateway is the assembled application.
type Gateway struct {
	cfg       config.Config
	bus       *bus.Bus
	tokens    *token.Manager
	cache     *token.CachingLocator
	consumers *consumer.Manager
	publisher *events.Publisher
	repo      *repository.Repository
	plugins   []plugin.Plugin
	locker    consumer.Locker
	counters  *token.MemoryCounters
}

// New wires every component. It fails at boot when an enqueue adapter has no queue backend.
func New(cfg config.Config, b Backends, opts ...Option) (*Gateway, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	if b.Index == nil || b.Tokens == nil {
		return nil, fmt.Errorf("gateway: index store and token backend are required")
	}
	if err := consumer.CheckQueuesPlugin(b.Queue, cfg.CommandsAdapter, cfg.DomainEventsAdapter); err != nil {
		return nil, err
	}
	var ownCounters *token.MemoryCounters
	if b.Counters == nil {
		ownCounters = token.NewMemoryCounters()
		b.Counters = ownCounters
	}
	if b.Interactions == nil {
		b.Interactions = repository.NewMemoryInteractions()
	}

	managerOpts := []consumer.Option{consumer.WithNames(map[consumer.Type]consumer.Names{
		consumer.TypeCommand:     {Queue: cfg.Queue.Commands.Queue, Busy: cfg.Queue.Commands.Busy},
		consumer.TypeDomainEvent: {Queue: cfg.Queue.DomainEvents.Queue, Busy: cfg.Queue.DomainEvents.Busy},
	})}
	if o.stream != nil {
		managerOpts = append(managerOpts, consumer.WithStream(o.stream))
	}
	consumers := consumer.NewManager(b.Queue, managerOpts...)

	repo := repository.New(b.Index)
	publisher, err := events.NewPublisher(cfg.DomainEventsAdapter, consumers, events.StoreSubscriber{Repo: repo})
	if err != nil {
		return nil, err
	}

	plugins, err := plugin.Build(cfg.Plugins, plugin.Deps{
		Counters:   b.Counters,
		Endpoint:   cfg.Interactions.Endpoint,
		HTTPClient: o.httpClient,
		Checks:     b.Checks,
	})
	if err != nil {
		return nil, err
	}

	cache := token.NewCachingLocator(b.Tokens, cfg.Tokens.CacheTTL)
	locators := []token.Locator{
		token.NewServerTokensLocator(token.ServerTokens{
			God:      cfg.GodToken,
			ReadOnly: cfg.ReadonlyToken,
			Ping:     cfg.PingToken,
		}),
		token.NewStaticLocator(StaticTokens(cfg.Tokens.Static)),
	}
	if cfg.Tokens.SigningSecret != "" {
		locators = append(locators, token.NewSignedLocator(cfg.Tokens.SigningSecret))
	}
	locators = append(locators, cache)
	validators := append([]token.Validator{token.Credentials{}}, plugin.Validators(plugins)...)
	tokens := token.NewManager(token.WithLocators(locators...), token.WithValidators(validators...))

	bs := bus.New()
	handler.Register(bs, handler.Deps{
		Repo:         repo,
		Tokens:       repository.NewTokenRepository(b.Tokens, cache),
		Interactions: b.Interactions,
		Events:       publisher,
		Consumers:    consumers,
		Version:      o.version,
		Plugins:      plugin.Names(plugins),
	})
	bs.Use(querymerge.Middleware{Limit: cfg.Limitations.NumberOfResults})
	bs.Use(plugin.Middleware(plugins)...)
	bs.Seal()

	obs.Info("gateway assembled", map[string]any{
		"commands_adapter":      cfg.CommandsAdapter,
		"domain_events_adapter": publisher.Adapter(),
		"plugins":               plugin.Names(plugins),
		"middleware":            bs.Middleware(),
		"validators":            tokens.Validators(),
	})

	return &Gateway{
		cfg:       cfg,
		bus:       bs,
		tokens:    tokens,
		cache:     cache,
		consumers: consumers,
		publisher: publisher,
		repo:      repo,
		plugins:   plugins,
		locker:    b.Locker,
		counters:  ownCounters,
	}, nil
}

// StaticTokens converts configured tokens.
func StaticTokens(in []config.StaticToken) []model.Token {
	out := make([]model.Token, 0, len(in))
	for _, s := range in {
		t := model.NewToken(model.TokenUUID(s.UUID), model.AppUUID(s.AppUUID))
		for _, idx := range s.Indices {
			t.Indices = append(t.Indices, model.IndexUUID(idx))
		}
		t.Endpoints = append([]string(nil), s.Endpoints...)
		t.Plugins = append([]string(nil), s.Plugins...)
		if s.TTL > 0 {
			t.TTL = s.TTL
		}
		for k, v := range s.Metadata {
			t.Metadata[k] = v
		}
		out = append(out, t)
	}
	return out
}

func (g *Gateway) Bus() *bus.Bus { return g.bus }

func (g *Gateway) Consumers() *consumer.Manager { return g.consumers }

func (g *Gateway) Repository() *repository.Repository { return g.repo }

func (g *Gateway) Config() config.Config { return g.cfg }

// Plugins returns enabled plugin names in registration order.
func (g *Gateway) Plugins() []string { return plugin.Names(g.plugins) }

// CheckToken authorizes a request.
func (g *Gateway) CheckToken(ctx context.Context, req token.Request, uuid model.TokenUUID) (model.Token, error) {
	return g.tokens.CheckToken(ctx, req, uuid)
}

// Dispatch runs msg. With the enqueue adapter, commands are pushed to the command queue and
// answered with Queued. Consumer control commands always run inline: a queued resume would
// sit behind the pause it is meant to lift.
func (g *Gateway) Dispatch(ctx context.Context, msg bus.Message) (any, error) {
	if g.cfg.CommandsAdapter == consumer.AdapterEnqueue && bus.IsCommand(msg) && !inlineOnly(msg) {
		g.pinGodPlugins(msg)
		env, err := g.consumers.EnqueueCommand(ctx, msg)
		if err != nil {
			return nil, err
		}
		return Queued{EnvelopeID: env.ID, Class: string(env.Class)}, nil
	}
	return g.bus.Dispatch(ctx, msg)
}

// pinGodPlugins lists every enabled plugin on a god token before it is queued. The god flag
// does not survive encoding, so the replayed command needs the plugins spelled out to run
// the same middleware as an inline dispatch.
func (g *Gateway) pinGodPlugins(msg bus.Message) {
	t := msg.AuthToken()
	if !t.IsGod() {
		return
	}
	r, ok := msg.(bus.Retokener)
	if !ok {
		return
	}
	t.Plugins = g.Plugins()
	r.SetToken(t)
}

func inlineOnly(msg bus.Message) bool {
	switch msg.Variant() {
	case bus.VariantPauseConsumers, bus.VariantResumeConsumers:
		return true
	}
	return false
}

// RunConsumer consumes queue type t until ctx ends.
func (g *Gateway) RunConsumer(ctx context.Context, t consumer.Type, opts ...consumer.ConsumerOption) error {
	var p consumer.Processor
	switch t {
	case consumer.TypeCommand:
		p = &consumer.CommandProcessor{Dispatcher: g.bus, Manager: g.consumers, Locker: g.locker}
	case consumer.TypeDomainEvent:
		p = g.publisher
	default:
		return fmt.Errorf("%w: queue type %q", model.ErrInvalidFormat, t)
	}
	opts = append([]consumer.ConsumerOption{consumer.WithWaitOnBusy(g.cfg.WaitOnBusy())}, opts...)
	c, err := g.consumers.NewConsumer(t, p, opts...)
	if err != nil {
		return err
	}
	return c.Run(ctx)
}

// Close stops the expiry loops of the token cache and of in-memory counters.
func (g *Gateway) Close() {
	g.cache.Stop()
	if g.counters != nil {
		g.counters.Stop()
	}
}

// CountersCheck adapts a counter store to a health check. Stores with a Ping method are
// pinged; others are probed with a read.
func CountersCheck(c token.CounterStore) plugin.Check {
	type pinger interface{ Ping(context.Context) error }
	return func(ctx context.Context) error {
		if p, ok := c.(pinger); ok {
			return p.Ping(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_, err := c.Count(ctx, "health")
		return err
	}
}
