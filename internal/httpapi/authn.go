package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
	"searchgate.io/internal/token"
)

const (
	authHeader     = "Authorization"
	bearer         = "Bearer "
	tokenParam     = "token"
	tokenIDHeader  = "Apisearch-Token-Id"
	tokenAltHeader = "X-Token"
)

// requestToken finds the token id in the query string, the token headers or a bearer
// Authorization header, in that order.
func requestToken(r *http.Request) model.TokenUUID {
	if v := strings.TrimSpace(r.URL.Query().Get(tokenParam)); v != "" {
		return model.TokenUUID(v)
	}
	for _, h := range []string{tokenIDHeader, tokenAltHeader} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return model.TokenUUID(v)
		}
	}
	if v, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		return model.TokenUUID(v)
	}
	return ""
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	tok := strings.TrimSpace(header[len(bearer):])
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}

// authorize checks the request token against app and index and returns the scope for the
// message plus a context carrying the token for audit logging.
func (a *API) authorize(r *http.Request, app model.AppUUID, index model.IndexUUID) (context.Context, bus.Scope, error) {
	req := token.Request{
		AppUUID:   app,
		IndexUUID: index,
		Referrer:  token.ReferrerHost(r.Header.Get("Referer")),
		Path:      r.URL.Path,
		Verb:      r.Method,
	}
	t, err := a.gw.CheckToken(r.Context(), req, requestToken(r))
	if err != nil {
		return nil, bus.Scope{}, err
	}
	ctx := token.ContextWithToken(r.Context(), t)
	return ctx, bus.NewScope(model.NewRepositoryReference(app, index), t), nil
}

// authorizeGod accepts only the configured god token. Consumer control is process wide
// and has no application scope.
func (a *API) authorizeGod(r *http.Request) (context.Context, bus.Scope, error) {
	ctx, scope, err := a.authorize(r, "", "")
	if err != nil {
		return nil, bus.Scope{}, err
	}
	if !scope.Token.IsGod() {
		return nil, bus.Scope{}, model.NewInvalidToken(scope.Token.UUID, "god token required")
	}
	return ctx, scope, nil
}
