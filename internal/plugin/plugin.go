// Package plugin holds the optional middleware sets a deployment can enable by name.
package plugin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/token"
)

// Plugin names accepted in configuration.
const (
	Security       = "security"
	MetadataFields = "metadata_fields"
	Interactions   = "interactions"
	Health         = "health"
)

// Plugin is a named set of middleware and token validators.
type Plugin struct {
	Name string
	// Mandatory plugins run for every token, not only those listing the plugin.
	Mandatory  bool
	Middleware []bus.Middleware
	Validators []token.Validator
}

// Check reports the status of an external component.
type Check func(ctx context.Context) error

// Deps are the collaborators plugins may need.
type Deps struct {
	Counters   token.CounterStore
	Now        func() time.Time
	Endpoint   string
	HTTPClient *http.Client
	Checks     map[string]Check
}

// Build returns the plugins named in order. Unknown names are a configuration error.
func Build(names []string, d Deps) ([]Plugin, error) {
	seen := map[string]bool{}
	var out []Plugin
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		p, err := build(name, d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func build(name string, d Deps) (Plugin, error) {
	switch name {
	case Security:
		vs := []token.Validator{token.HTTPReferrers{}, token.SecondsValid{Now: d.Now}}
		if d.Counters != nil {
			vs = append(vs, token.RequestsLimit{Counters: d.Counters, Now: d.Now})
		}
		return Plugin{
			Name:       Security,
			Mandatory:  true,
			Middleware: []bus.Middleware{RestrictedFields{}},
			Validators: vs,
		}, nil
	case MetadataFields:
		return Plugin{Name: MetadataFields, Middleware: []bus.Middleware{StripPluginSuffix{}}}, nil
	case Interactions:
		if d.Endpoint == "" {
			return Plugin{}, fmt.Errorf("plugin %s: interactions.endpoint is required", name)
		}
		client := d.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		return Plugin{
			Name:       Interactions,
			Middleware: []bus.Middleware{&EventServer{Endpoint: d.Endpoint, Client: client}},
		}, nil
	case Health:
		return Plugin{Name: Health, Mandatory: true, Middleware: []bus.Middleware{HealthStatus{Checks: d.Checks}}}, nil
	}
	return Plugin{}, fmt.Errorf("unknown plugin %q", name)
}

// Names returns the plugin names in registration order.
func Names(ps []Plugin) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

// Middleware returns the gated middleware of every plugin, in order.
func Middleware(ps []Plugin) []bus.Middleware {
	var out []bus.Middleware
	for _, p := range ps {
		for _, mw := range p.Middleware {
			out = append(out, Gate(p.Name, p.Mandatory, mw))
		}
	}
	return out
}

// Validators returns the validators contributed by every plugin, in order.
func Validators(ps []Plugin) []token.Validator {
	var out []token.Validator
	for _, p := range ps {
		out = append(out, p.Validators...)
	}
	return out
}

// Gate restricts mw to messages whose token enables the plugin. Mandatory plugins and god
// tokens always pass.
func Gate(plugin string, mandatory bool, mw bus.Middleware) bus.Middleware {
	return gated{plugin: plugin, mandatory: mandatory, inner: mw}
}

type gated struct {
	plugin    string
	mandatory bool
	inner     bus.Middleware
}

func (g gated) Name() string { return g.plugin + "." + g.inner.Name() }

func (g gated) Subscribes() []bus.Variant { return g.inner.Subscribes() }

func (g gated) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	if g.enabled(msg) {
		return g.inner.Execute(ctx, msg, next)
	}
	return next(ctx, msg)
}

func (g gated) enabled(msg bus.Message) bool {
	if g.mandatory {
		return true
	}
	t := msg.AuthToken()
	return t.IsGod() || t.HasPlugin(g.plugin)
}
