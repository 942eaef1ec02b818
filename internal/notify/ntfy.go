package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent          = "homecam/0.1"
	defaultNtfyServer  = "https://ntfy.sh/"
	defaultNtfyTimeout = 10 * time.Second
)

var (
	urgentTags = []string{"homecam", "rotating_light", "warning"}
	infoTags   = []string{"homecam", "house"}
)

type Ntfy struct {
	endpoint string
	client   *http.Client
}

func NewNtfy(topic string, timeout time.Duration) *Ntfy {
	if timeout <= 0 {
		timeout = defaultNtfyTimeout
	}
	endpoint := strings.TrimSpace(topic)
	if !strings.Contains(endpoint, "://") {
		endpoint = defaultNtfyServer + strings.TrimLeft(endpoint, "/")
	}
	return &Ntfy{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *Ntfy) Endpoint() string {
	return n.endpoint
}

func (n *Ntfy) Notify(ctx context.Context, msg Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Urgent {
		req.Header.Set("Priority", "urgent")
		req.Header.Set("Tags", strings.Join(urgentTags, ","))
	} else {
		req.Header.Set("Priority", "default")
		req.Header.Set("Tags", strings.Join(infoTags, ","))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
