package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/handler"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

// RestrictedFields narrows the fields a query returns to what the token allows.
// restricted_fields become "!field" exclusions; allowed_fields are appended as is.
type RestrictedFields struct{}

func (RestrictedFields) Name() string { return "restricted_fields" }

func (RestrictedFields) Subscribes() []bus.Variant { return []bus.Variant{bus.VariantQuery} }

func (RestrictedFields) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	q, ok := msg.(*bus.Query)
	if !ok {
		return next(ctx, msg)
	}
	t := q.AuthToken()
	restricted := t.MetadataStrings("restricted_fields")
	allowed := t.MetadataStrings("allowed_fields")
	if len(restricted) == 0 && len(allowed) == 0 {
		return next(ctx, msg)
	}
	cp := *q
	fields := append([]string(nil), q.Query.Fields...)
	for _, f := range restricted {
		fields = append(fields, "!"+f)
	}
	fields = append(fields, allowed...)
	cp.Query.Fields = fields
	return next(ctx, &cp)
}

// pluginMarker starts a suffix that clients append to index ids for plugin routing.
const pluginMarker = "-plugin"

// StripIndexSuffix removes every "-plugin..." segment from each index of a composite id.
func StripIndexSuffix(index model.IndexUUID) model.IndexUUID {
	parts := index.Split()
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := string(p)
		if i := strings.Index(s, pluginMarker); i >= 0 {
			s = s[:i]
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return model.IndexUUID(strings.Join(out, ","))
}

// StripPluginSuffix rewrites the index of DeleteItems to its base id.
type StripPluginSuffix struct{}

func (StripPluginSuffix) Name() string { return "strip_plugin_suffix" }

func (StripPluginSuffix) Subscribes() []bus.Variant { return []bus.Variant{bus.VariantDeleteItems} }

func (StripPluginSuffix) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	d, ok := msg.(*bus.DeleteItems)
	if !ok || !strings.Contains(string(d.Ref.IndexUUID), pluginMarker) {
		return next(ctx, msg)
	}
	cp := *d
	cp.Scope = bus.NewScope(d.Ref.ChangeIndex(StripIndexSuffix(d.Ref.IndexUUID)), d.Token)
	return next(ctx, &cp)
}

// EventServer forwards stored interactions to an external event collector.
type EventServer struct {
	Endpoint string
	Client   *http.Client
}

type interactionEvent struct {
	Event            string `json:"event"`
	EntityType       string `json:"entityType"`
	EntityID         string `json:"entityId"`
	TargetEntityType string `json:"targetEntityType"`
	TargetEntityID   string `json:"targetEntityId"`
	EventTime        string `json:"eventTime"`
	Weight           int    `json:"weight,omitempty"`
}

func (*EventServer) Name() string { return "event_server" }

func (*EventServer) Subscribes() []bus.Variant { return []bus.Variant{bus.VariantAddInteraction} }

// Execute stores the interaction first. Forwarding failures are logged; the interaction is
// already recorded at that point.
func (s *EventServer) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	res, err := next(ctx, msg)
	if err != nil {
		return res, err
	}
	m, ok := msg.(*bus.AddInteraction)
	if !ok {
		return res, nil
	}
	if err := s.Send(ctx, m.Interaction); err != nil {
		obs.Warn("interaction forward failed", map[string]any{
			"app_uuid": string(m.Ref.AppUUID),
			"endpoint": s.Endpoint,
			"error":    err,
		})
	}
	return res, nil
}

// Send posts one interaction.
func (s *EventServer) Send(ctx context.Context, in model.Interaction) error {
	when := in.OccurredOn
	if when.IsZero() {
		when = time.Now()
	}
	body, err := json.Marshal(interactionEvent{
		Event:            "interaction",
		EntityType:       "user",
		EntityID:         in.User,
		TargetEntityType: "item",
		TargetEntityID:   in.Item.ComposeUUID(),
		EventTime:        when.UTC().Format(time.RFC3339),
		Weight:           in.Weight,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return model.Transport("interaction forward", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return model.Transport("interaction forward", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// HealthStatus adds one status entry per check to a health report and folds it into
// the overall verdict.
type HealthStatus struct {
	Checks map[string]Check
}

func (HealthStatus) Name() string { return "health_status" }

func (HealthStatus) Subscribes() []bus.Variant { return []bus.Variant{bus.VariantCheckHealth} }

func (h HealthStatus) Execute(ctx context.Context, msg bus.Message, next bus.Next) (any, error) {
	res, err := next(ctx, msg)
	if err != nil {
		return res, err
	}
	report, ok := res.(*handler.HealthReport)
	if !ok {
		return res, nil
	}
	if report.Status == nil {
		report.Status = map[string]string{}
	}
	for name, check := range h.Checks {
		status := handler.StatusGreen
		if err := check(ctx); err != nil {
			status = handler.StatusRed
		}
		report.Status[name] = status
	}
	report.Healthy = handler.Healthy(report)
	return report, nil
}
