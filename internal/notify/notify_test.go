package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	title    string
	body     string
	priority string
	tags     string
}

func ntfyServer(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNtfyHeaders(t *testing.T) {
	tests := []struct {
		name         string
		msg          Notification
		wantPriority string
		wantTags     string
	}{
		{
			name:         "urgent alert",
			msg:          Notification{Title: "Security Alert", Body: "Unknown person seen 3 times", Urgent: true},
			wantPriority: "urgent",
			wantTags:     "homecam,rotating_light,warning",
		},
		{
			name:         "informational",
			msg:          Notification{Title: "Mom arrived home", Body: "Mom is home"},
			wantPriority: "default",
			wantTags:     "homecam,house",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ch := ntfyServer(t, http.StatusOK)
			n := NewNtfy(srv.URL+"/homecam", 0)
			require.NoError(t, n.Notify(context.Background(), tt.msg))

			got := <-ch
			assert.Equal(t, tt.msg.Title, got.title)
			assert.Equal(t, tt.msg.Body, got.body)
			assert.Equal(t, tt.wantPriority, got.priority)
			assert.Equal(t, tt.wantTags, got.tags)
		})
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv, _ := ntfyServer(t, http.StatusForbidden)
	err := NewNtfy(srv.URL, time.Second).Notify(context.Background(), Notification{Title: "x"})
	assert.ErrorContains(t, err, "ntfy returned 403")
}

func TestNtfyEndpoint(t *testing.T) {
	assert.Equal(t, "https://ntfy.sh/my-house", NewNtfy("my-house", 0).Endpoint())
	assert.Equal(t, "http://10.0.0.2/alerts", NewNtfy("http://10.0.0.2/alerts", 0).Endpoint())
}

func TestNewPicksBackend(t *testing.T) {
	_, isLog := New(Config{}).(*LogNotifier)
	assert.True(t, isLog)
	_, isNtfy := New(Config{NtfyTopic: "house"}).(*Ntfy)
	assert.True(t, isNtfy)
	assert.NoError(t, Noop().Notify(context.Background(), Notification{}))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, l.Notify(context.Background(), Notification{Title: "Security Alert", Urgent: true}))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `title="Security Alert"`)
}

type recordingNotifier struct {
	mu    sync.Mutex
	got   []Notification
	block chan struct{}
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, n := range r.got {
		out[i] = n.Title
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("ignored")}
	a := NewAsync(rec, 8, quiet())
	for _, title := range []string{"a", "b", "c"} {
		assert.NoError(t, a.Notify(context.Background(), Notification{Title: title}))
	}
	a.Close()
	assert.Equal(t, []string{"a", "b", "c"}, rec.titles())

	assert.NoError(t, a.Notify(context.Background(), Notification{Title: "late"}))
	a.Close()
	assert.Len(t, rec.titles(), 3)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{})}
	a := NewAsync(rec, 1, quiet())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = a.Notify(context.Background(), Notification{Title: "n"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(rec.block)
	a.Close()
	got := len(rec.titles())
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 2)
}
