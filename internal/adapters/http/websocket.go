package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/geodash/internal/adapters/nats"
	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "records" (everything visible) | "mine" (own records only)
}

// eventVisibleTo applies the row-level read policy to a record event.
func eventVisibleTo(sess *domain.Session, ev *domain.RecordEvent, mineOnly bool) bool {
	own := ev.OwnerID == sess.PrincipalID
	if mineOnly {
		return own
	}
	return sess.Role == domain.RoleAdmin || own || ev.Shared
}

// WebSocketHandler returns a handler that relays record change events to the
// signed-in browser. Every connection starts on the "records" channel;
// clients may switch with {"action":"subscribe","channel":"mine"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sess, _ := c.Locals(sessionLocal).(*domain.Session)
		if sess == nil || nc == nil {
			_ = c.WriteJSON(map[string]string{"error": "live updates unavailable"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		logger := slog.Default().With("principal_id", sess.PrincipalID, "remote", c.RemoteAddr().String())
		logger.Info("ws client connected")

		var mu sync.Mutex
		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		var (
			chMu     sync.RWMutex
			channel  = "records"
			relaying = true
		)
		sub, err := nc.Subscribe(natsadapter.RecordSubjectAll, func(msg *nats.Msg) {
			var ev domain.RecordEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				return
			}
			chMu.RLock()
			on, mine := relaying, channel == "mine"
			chMu.RUnlock()
			if on && eventVisibleTo(sess, &ev, mine) {
				_ = writeJSON(ev)
			}
		})
		if err != nil {
			logger.Error("ws subscribe failed", "error", err)
			return
		}
		defer func() { _ = sub.Unsubscribe() }()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages for subscribe/unsubscribe
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if m.Channel == "" {
				m.Channel = "records"
			}
			if m.Channel != "records" && m.Channel != "mine" {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				chMu.Lock()
				channel, relaying = m.Channel, true
				chMu.Unlock()
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})
			case "unsubscribe":
				chMu.Lock()
				relaying = false
				chMu.Unlock()
				_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})
			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		logger.Info("ws client disconnected")
	}
}
