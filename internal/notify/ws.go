package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

const pingInterval = 30 * time.Second

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and streams hub events to the UI until the client leaves.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // UI runs on the same device
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}
		defer conn.Close(ws.StatusNormalClosure, "")

		events, cancel := hub.Subscribe()
		defer cancel()

		ctx, stop := context.WithCancel(r.Context())
		defer stop()

		// Drain incoming frames so pings are answered and closes noticed.
		go func() {
			defer stop()
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					logger.Error("marshal event", "error", err)
					continue
				}
				if err := conn.Write(ctx, ws.MessageText, data); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
