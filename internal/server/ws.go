package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// statsInterval is how often the live stats socket pushes a snapshot.
const statsInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stats feed is read-only telemetry on the same origin-less
	// LAN surface as the stream itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatsSocket pushes periodic health snapshots to a dashboard over
// a websocket. A write failure or client close ends this feed only.
func (s *Server) handleStatsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stats socket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Debug("stats client connected", "remote", r.RemoteAddr)

	// Drain incoming messages so close frames and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.Health()); err != nil {
				slog.Debug("removed stats client", "error", err)
				return
			}
		}
	}
}
