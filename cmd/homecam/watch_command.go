package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kdimtricp/homecam/internal/home"
	"github.com/kdimtricp/homecam/internal/models"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live events from a running homecam server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := server
			if target == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				target = cfg.API.Bind
			}
			wsURL, err := eventsURL(target)
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", wsURL, err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				conn.Close()
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s\n", wsURL)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return fmt.Errorf("read event: %w", err)
				}
				printMessage(out, raw)
			}
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Server address (defaults to api.bind)")
	return cmd
}

// eventsURL turns a host:port or http URL into the server's WebSocket feed.
func eventsURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if !strings.Contains(target, "://") {
		if host, port, err := net.SplitHostPort(target); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
			target = net.JoinHostPort("127.0.0.1", port)
		}
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/events"
	return u.String(), nil
}

func printMessage(out io.Writer, raw []byte) {
	var msg struct {
		Type string          `json:"type"`
		At   time.Time       `json:"at"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		fmt.Fprintln(out, string(raw))
		return
	}
	stamp := msg.At.Local().Format("15:04:05")

	switch msg.Type {
	case home.MessageEvent:
		var ev models.SecurityEvent
		if json.Unmarshal(msg.Data, &ev) == nil {
			fmt.Fprintf(out, "%s %-17s %s\n", stamp, ev.Kind, ev.Description)
			return
		}
	case home.MessagePresence:
		var change models.StatusChange
		if json.Unmarshal(msg.Data, &change) == nil {
			fmt.Fprintf(out, "%s %-17s %s is %s\n", stamp, "presence", change.Name, change.Status)
			return
		}
	}
	fmt.Fprintf(out, "%s %-17s %s\n", stamp, msg.Type, string(msg.Data))
}
