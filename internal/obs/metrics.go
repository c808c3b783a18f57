package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_total",
			Help: "Messages dispatched through the bus by variant and outcome.",
		},
		[]string{"variant", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_dispatch_duration_seconds",
			Help:    "Time spent in middleware chain and handler.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"variant"},
	)

	queueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_total",
			Help: "Queue messages by logical type and outcome (enqueued, consumed, rejected, failed).",
		},
		[]string{"type", "outcome"},
	)

	consumerBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consumer_busy",
			Help: "1 while the consumers of a queue type are paused.",
		},
		[]string{"type"},
	)

	tokenRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_rejections_total",
			Help: "Token checks rejected, by reason.",
		},
		[]string{"reason"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "searchgate_ready",
		Help: "1 when the readiness probe last succeeded.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			dispatchTotal, dispatchDuration,
			queueMessagesTotal, consumerBusy,
			tokenRejections, readyGauge,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath replaces tenant identifiers in a request path so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) < 2 || segs[0] != "v1" || segs[1] == "consumers" {
		return p
	}
	segs[1] = ":app"
	if len(segs) >= 4 {
		switch segs[2] {
		case "indices":
			segs[3] = ":index"
		case "tokens":
			segs[3] = ":token"
		}
	}
	return "/" + strings.Join(segs, "/")
}

// ObserveDispatch records one bus dispatch.
func ObserveDispatch(variant, outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(variant, outcome).Inc()
	dispatchDuration.WithLabelValues(variant).Observe(d.Seconds())
}

// CountQueue increments a queue outcome counter.
func CountQueue(queueType, outcome string) {
	queueMessagesTotal.WithLabelValues(queueType, outcome).Inc()
}

// SetConsumerBusy exposes the busy flag of a consumer.
func SetConsumerBusy(queueType string, busy bool) {
	v := 0.0
	if busy {
		v = 1
	}
	consumerBusy.WithLabelValues(queueType).Set(v)
}

// CountTokenRejection increments the rejection counter.
func CountTokenRejection(reason string) {
	tokenRejections.WithLabelValues(reason).Inc()
}

// SetReady publishes readiness.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
