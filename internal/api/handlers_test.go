package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/homecam/internal/config"
	"github.com/kdimtricp/homecam/internal/home"
	"github.com/kdimtricp/homecam/internal/notify"
	"github.com/kdimtricp/homecam/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAPI serves the router against a home service whose box is box.
func newTestAPI(t *testing.T, box http.Handler) *httptest.Server {
	t.Helper()
	boxSrv := httptest.NewServer(box)
	t.Cleanup(boxSrv.Close)

	cfg := config.Default()
	cfg.Box.URL = boxSrv.URL
	svc, err := home.New(home.Deps{
		Config:   &cfg,
		Store:    storage.NewMemoryStore(),
		Notifier: notify.Noop(),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, svc.Load(ctx))
	go svc.Hub().Run(ctx)

	srv := httptest.NewServer(NewRouter(&App{Home: svc, Logger: quietLogger()}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestPing(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())
	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestPeopleLifecycle(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())

	resp, body := do(t, http.MethodPost, srv.URL+"/api/people", `{"name":"alice"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["added"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/people", `{"name":"alice"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["added"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/people/alice/relationship", `{"relationship":"Mom"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/people", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	people := body["people"].([]any)
	require.Len(t, people, 1)
	person := people[0].(map[string]any)
	assert.Equal(t, "alice", person["name"])
	assert.Equal(t, "home", person["status"])
	assert.Equal(t, "Mom", person["display_name"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/people/alice", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/people/alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddPersonValidation(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"blank", `{"name":"  "}`},
		{"reserved", `{"name":"unknown"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/api/people", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGuardModeAndEvents(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())

	resp, body := do(t, http.MethodGet, srv.URL+"/api/guard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/guard", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPut, srv.URL+"/api/guard", `{"active":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/events?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "Guard Mode activated", events[0].(map[string]any)["description"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/events?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["guard_mode"])
	assert.Equal(t, "disconnected", body["stream"].(map[string]any)["state"])
}

func TestFrameNotAvailable(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/frame.jpg", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLabelsAndRegisterErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /recog/labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"labels": []string{"bob", "unknown", "alice"}})
	})
	mux.HandleFunc("POST /recog/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		switch req["label"] {
		case "busy":
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": "busy"})
		case "slow":
			assert.Equal(t, false, req["wait"])
			writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "running": true})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "camera offline"})
		}
	})
	mux.HandleFunc("POST /recog/delete", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "label not found"})
	})
	srv := newTestAPI(t, mux)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/labels", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"alice", "bob"}, body["labels"])

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing label", `{"label":" "}`, http.StatusBadRequest},
		{"busy", `{"label":"busy"}`, http.StatusConflict},
		{"accepted", `{"label":"slow","wait":false}`, http.StatusAccepted},
		{"upstream failure", `{"label":"carol"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPost, srv.URL+"/api/labels/register", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, body = do(t, http.MethodDelete, srv.URL+"/api/labels/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "label not found", body["error"])
}

func TestBoxHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
	})
	srv := newTestAPI(t, mux)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
}

func TestEventStream(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	do(t, http.MethodPut, srv.URL+"/api/guard", `{"active":true}`)

	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, strings.TrimSpace(name))
		}
	}
	assert.ElementsMatch(t, []string{home.MessageEvent, home.MessageGuard}, events)
}

func TestWebSocketFeed(t *testing.T) {
	srv := newTestAPI(t, http.NotFoundHandler())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered during the upgrade; give the hub a
	// moment before publishing.
	require.Eventually(t, func() bool {
		resp, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
		return resp.StatusCode == http.StatusOK && body["subscribers"] == float64(1)
	}, 2*time.Second, 20*time.Millisecond)

	do(t, http.MethodPut, srv.URL+"/api/guard", `{"active":true}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg home.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Contains(t, []string{home.MessageEvent, home.MessageGuard}, msg.Type)
}
