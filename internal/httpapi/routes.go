package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/gateway"
	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
)

func (a *API) routes() {
	a.mux.HandleFunc("HEAD /{$}", a.ping)
	a.mux.HandleFunc("GET /health", a.checkHealth)

	a.mux.HandleFunc("GET /v1/{app}/indices", a.getIndices)
	a.mux.HandleFunc("PUT /v1/{app}/indices/{index}", a.createIndex)
	a.mux.HandleFunc("DELETE /v1/{app}/indices/{index}", a.deleteIndex)
	a.mux.HandleFunc("HEAD /v1/{app}/indices/{index}", a.checkIndex)
	a.mux.HandleFunc("POST /v1/{app}/indices/{index}/configure", a.configureIndex)
	a.mux.HandleFunc("POST /v1/{app}/indices/{index}/reset", a.resetIndex)

	a.mux.HandleFunc("PUT /v1/{app}/indices/{index}/items", a.indexItems)
	a.mux.HandleFunc("DELETE /v1/{app}/indices/{index}/items", a.deleteItems)
	a.mux.HandleFunc("POST /v1/{app}/indices/{index}/items", a.updateItems)
	a.mux.HandleFunc("GET /v1/{app}/indices/{index}/search", a.search)
	a.mux.HandleFunc("POST /v1/{app}/indices/{index}/search", a.search)

	a.mux.HandleFunc("POST /v1/{app}/indices/{index}/interactions", a.addInteraction)
	a.mux.HandleFunc("DELETE /v1/{app}/interactions", a.deleteInteractions)

	a.mux.HandleFunc("PUT /v1/{app}/events", a.createEventsIndex)
	a.mux.HandleFunc("DELETE /v1/{app}/events", a.deleteEventsIndex)
	a.mux.HandleFunc("GET /v1/{app}/events", a.queryEvents)

	a.mux.HandleFunc("PUT /v1/{app}/tokens", a.addToken)
	a.mux.HandleFunc("GET /v1/{app}/tokens", a.getTokens)
	a.mux.HandleFunc("DELETE /v1/{app}/tokens", a.deleteTokens)
	a.mux.HandleFunc("DELETE /v1/{app}/tokens/{token}", a.deleteToken)

	a.mux.HandleFunc("POST /v1/consumers/pause", a.pauseConsumers)
	a.mux.HandleFunc("POST /v1/consumers/resume", a.resumeConsumers)
	a.mux.HandleFunc("GET /v1/consumers/stream", a.Stream)
}

func pathApp(r *http.Request) model.AppUUID { return model.AppUUID(r.PathValue("app")) }

func pathIndex(r *http.Request) model.IndexUUID { return model.IndexUUID(r.PathValue("index")) }

// dispatch authorizes the request, builds the message from its scope and writes the answer.
// Queued commands answer 202; commands without a result answer 204.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request, index model.IndexUUID, build func(bus.Scope) (bus.Message, error)) {
	ctx, scope, err := a.authorize(r, pathApp(r), index)
	if err != nil {
		handleError(w, r, err)
		return
	}
	msg, err := build(scope)
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := a.gw.Dispatch(ctx, msg)
	if err != nil {
		handleError(w, r, err)
		return
	}
	switch v := res.(type) {
	case gateway.Queued:
		writeJSON(w, http.StatusAccepted, v)
	case nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func (a *API) ping(w http.ResponseWriter, r *http.Request) {
	ctx, scope, err := a.authorize(r, model.AppUUID(r.URL.Query().Get("app_id")), "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := a.gw.Dispatch(ctx, &bus.Ping{Scope: scope})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if ok, _ := res.(bool); !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) checkHealth(w http.ResponseWriter, r *http.Request) {
	ctx, scope, err := a.authorize(r, model.AppUUID(r.URL.Query().Get("app_id")), "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := a.gw.Dispatch(ctx, &bus.CheckHealth{Scope: scope})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- indices ---

func (a *API) getIndices(w http.ResponseWriter, r *http.Request) {
	index := model.IndexUUID(r.URL.Query().Get("index"))
	a.dispatch(w, r, index, func(s bus.Scope) (bus.Message, error) {
		return &bus.GetIndices{Scope: s}, nil
	})
}

func (a *API) createIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.CreateIndex{Scope: s}
		return m, decodeJSON(r, &m.Config, true)
	})
}

func (a *API) deleteIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		return &bus.DeleteIndex{Scope: s}, nil
	})
}

func (a *API) configureIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.ConfigureIndex{Scope: s}
		return m, decodeJSON(r, &m.Config, false)
	})
}

func (a *API) resetIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		return &bus.ResetIndex{Scope: s}, nil
	})
}

func (a *API) checkIndex(w http.ResponseWriter, r *http.Request) {
	ctx, scope, err := a.authorize(r, pathApp(r), pathIndex(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := a.gw.Dispatch(ctx, &bus.CheckIndex{Scope: scope})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if ok, _ := res.(bool); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- items ---

func (a *API) indexItems(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.IndexItems{Scope: s}
		return m, decodeJSON(r, &m.Items, false)
	})
}

func (a *API) deleteItems(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.DeleteItems{Scope: s}
		return m, decodeJSON(r, &m.ItemUUIDs, false)
	})
}

type updateItemsRequest struct {
	Query   model.Query   `json:"query"`
	Changes model.Changes `json:"changes"`
}

func (a *API) updateItems(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		var req updateItemsRequest
		if err := decodeJSON(r, &req, false); err != nil {
			return nil, err
		}
		return &bus.UpdateItems{Scope: s, Query: req.Query, Changes: req.Changes}, nil
	})
}

// search reads the query from the body on POST and from the query parameter on GET.
// Every other URL parameter fills {{name}} placeholders in the token's stored queries.
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.Query{Scope: s, Parameters: searchParameters(r)}
		if r.Method == http.MethodPost {
			return m, decodeJSON(r, &m.Query, true)
		}
		if raw := r.URL.Query().Get("query"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &m.Query); err != nil {
				return nil, fmt.Errorf("%w: query parameter: %v", model.ErrInvalidFormat, err)
			}
		}
		return m, nil
	})
}

func searchParameters(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for k := range values {
		if k == "query" || k == tokenParam {
			continue
		}
		params[k] = values.Get(k)
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// --- interactions ---

func (a *API) addInteraction(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, pathIndex(r), func(s bus.Scope) (bus.Message, error) {
		m := &bus.AddInteraction{Scope: s}
		if err := decodeJSON(r, &m.Interaction, false); err != nil {
			return nil, err
		}
		if strings.TrimSpace(m.Interaction.User) == "" {
			return nil, fmt.Errorf("%w: interaction user is required", model.ErrInvalidFormat)
		}
		if m.Interaction.OccurredOn.IsZero() {
			m.Interaction.OccurredOn = time.Now().UTC()
		}
		return m, nil
	})
}

func (a *API) deleteInteractions(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		return &bus.DeleteAllInteractions{Scope: s}, nil
	})
}

// --- events ---

func (a *API) createEventsIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		m := &bus.CreateEventsIndex{Scope: s}
		return m, decodeJSON(r, &m.Config, true)
	})
}

func (a *API) deleteEventsIndex(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		return &bus.DeleteEventsIndex{Scope: s}, nil
	})
}

func (a *API) queryEvents(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		q := r.URL.Query()
		m := &bus.QueryEvents{Scope: s, Name: q.Get("name")}
		var err error
		if m.From, err = parseTime(q.Get("from")); err != nil {
			return nil, err
		}
		if m.To, err = parseTime(q.Get("to")); err != nil {
			return nil, err
		}
		if m.Length, err = parseNonNegative(q.Get("length")); err != nil {
			return nil, err
		}
		if m.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
			return nil, err
		}
		return m, nil
	})
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: time %q", model.ErrInvalidFormat, raw)
	}
	return &t, nil
}

func parseNonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q must be a non-negative integer", model.ErrInvalidFormat, raw)
	}
	return v, nil
}

// --- tokens ---

// addToken assigns the token uuid before dispatch, so a queued add still tells the caller
// which token it will create. The uuid is returned in the Location header.
func (a *API) addToken(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		m := &bus.AddToken{Scope: s}
		if err := decodeJSON(r, &m.NewToken, false); err != nil {
			return nil, err
		}
		if m.NewToken.AppUUID == "" {
			m.NewToken.AppUUID = s.Ref.AppUUID
		}
		if m.NewToken.AppUUID.ComposeUUID() != s.Ref.AppUUID.ComposeUUID() {
			return nil, fmt.Errorf("%w: token app %q does not match %q", model.ErrInvalidFormat, m.NewToken.AppUUID, s.Ref.AppUUID)
		}
		if m.NewToken.UUID.ComposeUUID() == "" {
			m.NewToken.UUID = model.TokenUUID(ids.NewTokenUUID())
		}
		w.Header().Set("Location", "/v1/"+s.Ref.AppUUID.ComposeUUID()+"/tokens/"+m.NewToken.UUID.ComposeUUID())
		return m, nil
	})
}

func (a *API) getTokens(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		return &bus.GetTokens{Scope: s}, nil
	})
}

func (a *API) deleteTokens(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		return &bus.DeleteTokens{Scope: s}, nil
	})
}

func (a *API) deleteToken(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "", func(s bus.Scope) (bus.Message, error) {
		return &bus.DeleteToken{Scope: s, TokenUUID: model.TokenUUID(r.PathValue("token"))}, nil
	})
}

// --- consumers ---

type consumersRequest struct {
	Types []string `json:"types"`
}

func (a *API) pauseConsumers(w http.ResponseWriter, r *http.Request) {
	a.consumerControl(w, r, func(s bus.Scope, types []string) bus.Message {
		return &bus.PauseConsumers{Scope: s, Types: types}
	})
}

func (a *API) resumeConsumers(w http.ResponseWriter, r *http.Request) {
	a.consumerControl(w, r, func(s bus.Scope, types []string) bus.Message {
		return &bus.ResumeConsumers{Scope: s, Types: types}
	})
}

func (a *API) consumerControl(w http.ResponseWriter, r *http.Request, build func(bus.Scope, []string) bus.Message) {
	ctx, scope, err := a.authorizeGod(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req consumersRequest
	if err := decodeJSON(r, &req, true); err != nil {
		handleError(w, r, err)
		return
	}
	if t := r.URL.Query()["type"]; len(t) > 0 {
		req.Types = append(req.Types, t...)
	}
	if _, err := a.gw.Dispatch(ctx, build(scope, req.Types)); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
