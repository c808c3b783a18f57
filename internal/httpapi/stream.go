package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"searchgate.io/internal/stream"
)

const streamHeartbeat = 15 * time.Second

// Stream serves consumer status events as Server-Sent Events to god tokens. Repeated
// type parameters narrow the feed to those queue types.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if _, _, err := a.authorizeGod(r); err != nil {
		handleError(w, r, err)
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	only := map[string]bool{}
	for _, t := range r.URL.Query()["type"] {
		only[t] = true
	}
	events := a.stream.Subscribe(r.Context())

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	fmt.Fprint(w, ": stream started\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			if len(only) > 0 && !only[evt.QueueType] {
				continue
			}
			if err := writeEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt stream.ConsumerEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, payload)
	return err
}
