package token

import (
	"context"
	"net/url"
	"strings"
	"time"

	"searchgate.io/internal/model"
)

// Request is the context a token is checked against.
type Request struct {
	AppUUID   model.AppUUID
	IndexUUID model.IndexUUID
	Referrer  string
	Path      string
	Verb      string
}

// Endpoint returns the lower-cased verb~~path form with surrounding slashes trimmed.
func (r Request) Endpoint() string {
	return NormalizeEndpoint(r.Verb + "~~" + r.Path)
}

// NormalizeEndpoint canonicalises a verb~~path string.
func NormalizeEndpoint(endpoint string) string {
	verb, path, found := strings.Cut(endpoint, "~~")
	if !found {
		return strings.ToLower(strings.Trim(endpoint, "/"))
	}
	return strings.ToLower(strings.TrimSpace(verb) + "~~" + strings.Trim(strings.TrimSpace(path), "/"))
}

// Validator is a predicate a token must satisfy. Validators must not assume they run once
// per request: the chain may be evaluated again for the same token.
type Validator interface {
	Name() string
	IsTokenValid(ctx context.Context, t model.Token, req Request) (bool, error)
}

// Credentials checks app ownership, index scope and endpoint scope.
type Credentials struct{}

func (Credentials) Name() string { return "credentials" }

func (Credentials) IsTokenValid(_ context.Context, t model.Token, req Request) (bool, error) {
	if t.AppUUID.ComposeUUID() != req.AppUUID.ComposeUUID() {
		return false, nil
	}
	return indicesAllowed(t.Indices, req.IndexUUID) && endpointAllowed(t.Endpoints, req.Endpoint()), nil
}

// indicesAllowed passes when the target is empty, the token is unrestricted, or every
// concrete target index is listed on the token. A wildcard target needs an unrestricted token.
func indicesAllowed(allowed []model.IndexUUID, target model.IndexUUID) bool {
	targets := target.Split()
	if len(targets) == 0 || len(allowed) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a.ComposeUUID()] = struct{}{}
	}
	for _, idx := range targets {
		if idx == model.Wildcard {
			return false
		}
		if _, ok := set[string(idx)]; !ok {
			return false
		}
	}
	return true
}

// endpointAllowed matches literally or against a pattern whose {name} segments match any segment.
func endpointAllowed(allowed []string, endpoint string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		if matchEndpoint(NormalizeEndpoint(pattern), endpoint) {
			return true
		}
	}
	return false
}

func matchEndpoint(pattern, endpoint string) bool {
	if pattern == endpoint {
		return true
	}
	if !strings.Contains(pattern, "{") {
		return false
	}
	pv, pp, _ := strings.Cut(pattern, "~~")
	ev, ep, _ := strings.Cut(endpoint, "~~")
	if pv != ev {
		return false
	}
	ps := strings.Split(pp, "/")
	es := strings.Split(ep, "/")
	if len(ps) != len(es) {
		return false
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], "{") && strings.HasSuffix(ps[i], "}") && es[i] != "" {
			continue
		}
		if ps[i] != es[i] {
			return false
		}
	}
	return true
}

// HTTPReferrers restricts a token to the hosts listed in its http_referrers metadata.
type HTTPReferrers struct{}

func (HTTPReferrers) Name() string { return "http_referrers" }

func (HTTPReferrers) IsTokenValid(_ context.Context, t model.Token, req Request) (bool, error) {
	allowed := t.MetadataStrings("http_referrers")
	if len(allowed) == 0 {
		return true, nil
	}
	for _, host := range allowed {
		if host == req.Referrer {
			return true, nil
		}
	}
	return false, nil
}

// ReferrerHost extracts the host of a Referer header value.
func ReferrerHost(referer string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// SecondsValid expires a token seconds_valid seconds after its last update. 0 never expires.
type SecondsValid struct {
	Now func() time.Time
}

func (SecondsValid) Name() string { return "seconds_valid" }

func (v SecondsValid) IsTokenValid(_ context.Context, t model.Token, _ Request) (bool, error) {
	seconds := t.MetadataInt("seconds_valid", 0)
	if seconds <= 0 {
		return true, nil
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	deadline := t.UpdatedAt.UTC().Add(time.Duration(seconds) * time.Second)
	return !deadline.Before(now), nil
}
