package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"searchgate.io/internal/audit"
	"searchgate.io/internal/gateway"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/plugin"
	"searchgate.io/internal/stream"
)

const serviceName = "searchgate"

// ReadyProbe checks the backends a node needs to serve traffic.
type ReadyProbe struct {
	DB     *sql.DB
	Checks map[string]plugin.Check
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	names := make([]string, 0, len(rp.Checks))
	for name := range rp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rp.Checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP adapter over the gateway.
type API struct {
	mux        *http.ServeMux
	gw         *gateway.Gateway
	readyProbe readinessChecker
	stream     *stream.Stream
	version    string

	maxBodyBytes int64
	rateBurst    int
	ratePerSec   float64
}

func New(gw *gateway.Gateway, rp readinessChecker, version string) *API {
	httpCfg := gw.Config().HTTP
	a := &API{
		mux:          http.NewServeMux(),
		gw:           gw,
		readyProbe:   rp,
		stream:       gw.Consumers().Stream(),
		version:      version,
		maxBodyBytes: httpCfg.MaxBodyBytes,
		rateBurst:    httpCfg.RateLimit.Burst,
		ratePerSec:   httpCfg.RateLimit.PerSecond,
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.routes()

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler wraps the mux with the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = Compress(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readyProbe != nil {
		if err := a.readyProbe.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleError maps domain errors onto status codes.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, model.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, model.ErrResourceExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrResourceNotAvailable):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidFormat):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, model.ErrQueuePluginMissing):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		obs.Error("request failed", map[string]any{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads one JSON value into dst. An empty body leaves dst untouched when
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: request body is required", model.ErrInvalidFormat)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			if optional {
				return nil
			}
			return fmt.Errorf("%w: request body is required", model.ErrInvalidFormat)
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", model.ErrInvalidFormat)
	}
	return nil
}
