package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus is the health surface of the streaming service, consumed
// by the Docker healthcheck, dashboards and the MQTT emitter.
type HealthStatus struct {
	Status          string    `json:"status"` // "healthy", "degraded"
	UptimeSeconds   int64     `json:"uptime_seconds"`
	StreamConnected bool      `json:"stream_connected"`
	MQTTConnected   bool      `json:"mqtt_connected"`
	Viewers         int64     `json:"viewers"`
	Generation      uint64    `json:"generation"`
	FramesPublished uint64    `json:"frames_published"`
	FramesRejected  uint64    `json:"frames_rejected"`
	LastFrameAt     time.Time `json:"last_frame_at,omitempty"`
}

// Health gathers the current health snapshot.
//
// "degraded" means the process is up but the capture side is not
// delivering: either the source reports disconnected or no frame has
// arrived yet.
func (s *Server) Health() HealthStatus {
	stats := s.sink.Stats()

	status := HealthStatus{
		Status:          "healthy",
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		Viewers:         s.viewers.Load(),
		Generation:      stats.Generation,
		FramesPublished: stats.Published,
		FramesRejected:  stats.Rejected,
		LastFrameAt:     stats.LastPublishAt,
	}

	if s.probes.StreamConnected != nil {
		status.StreamConnected = s.probes.StreamConnected()
	}
	if s.probes.MQTTConnected != nil {
		status.MQTTConnected = s.probes.MQTTConnected()
	}

	if !status.StreamConnected || stats.Generation == 0 {
		status.Status = "degraded"
	}

	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Health()); err != nil {
		slog.Debug("health write aborted", "error", err)
	}
}
