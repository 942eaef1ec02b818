package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const keepAliveInterval = 15 * time.Second

// EventStreamHandler relays live hub messages as Server-Sent Events. The
// SSE event name is the message type.
func (app *App) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := app.Home.Hub().Subscribe()
	if sub == nil {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	defer app.Home.Hub().Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	clientGone := r.Context().Done()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			var head struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &head); err != nil || head.Type == "" {
				head.Type = "message"
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, msg)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

func (app *App) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	app.Home.Hub().ServeWS(w, r)
}
