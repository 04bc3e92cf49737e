package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reelmint/internal/telemetry"
)

// EventStream is the long-lived server-push channel for the
// authenticated user. It emits a readiness event on open, one named
// "video" event per terminal transition of the user's tasks, and a
// periodic heartbeat. The subscription is released on disconnect.
func (a *App) EventStream(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch, cancel := a.Hub.Subscribe(userID)
	defer cancel()

	telemetry.EventSubscribers.Inc()
	defer telemetry.EventSubscribers.Dec()

	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: video\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
