// Package server exposes the camera stream and its operational state
// over HTTP: an index page, the MJPEG stream, single-frame snapshots,
// health/readiness probes and a live stats feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/CyanAutomation/motion-in-ocean/internal/framesink"
	"github.com/CyanAutomation/motion-in-ocean/internal/viewstream"
)

// streamBoundary is the multipart boundary token. Browsers key on the
// boundary named in the Content-Type header, so it must match what the
// writer emits.
const streamBoundary = "frame"

var indexTemplate = template.Must(template.New("index").Parse(`<html>
<head>
<title>Motion in Ocean - MJPEG streaming</title>
</head>
<body>
<h1>Motion in Ocean - MJPEG Streaming</h1>
<img src="/stream.mjpg" width="{{.Width}}" height="{{.Height}}" />
</body>
</html>
`))

// Probes reports the liveness of the server's collaborators for the
// health surface. Nil funcs read as "not connected".
type Probes struct {
	StreamConnected func() bool
	MQTTConnected   func() bool
}

// Server serves the viewer-facing HTTP surface. One ClientStream is
// created per /stream.mjpg request; its lifetime is the request's.
type Server struct {
	sink   *framesink.Sink
	width  int
	height int
	probes Probes

	started time.Time
	viewers atomic.Int64

	httpServer *http.Server
}

// New creates a server streaming from sink. width and height are only
// advisory (they size the <img> on the index page).
func New(addr string, sink *framesink.Sink, width, height int, probes Probes) *Server {
	s := &Server{
		sink:    sink,
		width:   width,
		height:  height,
		probes:  probes,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	return s
}

// Routes builds the handler mux. Exposed separately so tests can drive
// the handlers through httptest.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /stream.mjpg", s.handleStream)
	mux.HandleFunc("GET /snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /stats", s.handleStatsSocket)
	return mux
}

// ListenAndServe runs the HTTP server until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains active ones. Streaming
// handlers exit through their request contexts.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Viewers is the number of currently connected stream viewers.
func (s *Server) Viewers() int64 {
	return s.viewers.Load()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Width, Height int }{s.width, s.height}); err != nil {
		slog.Debug("index render aborted", "error", err)
	}
}

// handleStream serves one viewer an infinite multipart/x-mixed-replace
// sequence of JPEG parts. The viewer subscribes at the sink's current
// generation, so its first part is the next captured frame, not a stale
// one. Disconnect is the normal exit: it terminates this stream only.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	vs := viewstream.New(s.sink)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(streamBoundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Send headers before blocking for the first frame so clients see
	// the stream open immediately.
	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	s.viewers.Add(1)
	defer s.viewers.Add(-1)

	slog.Debug("streaming client connected",
		"viewer", vs.ID(),
		"remote", r.RemoteAddr,
	)

	for {
		chunk, err := vs.Next(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, framesink.ErrNoFrame):
				slog.Info("closing starved streaming client",
					"viewer", vs.ID(),
					"last_generation", vs.LastSeen(),
				)
			default:
				// Cancellation or shutdown: the expected end of a stream.
				slog.Debug("removed streaming client",
					"viewer", vs.ID(),
					"frames_sent", vs.Emitted(),
					"reason", err,
				)
			}
			return
		}

		if err := writeChunk(mw, chunk); err != nil {
			// Broken pipe on the peer side; ordinary disconnect.
			slog.Debug("removed streaming client",
				"viewer", vs.ID(),
				"frames_sent", vs.Emitted(),
				"reason", err,
			)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeChunk emits one multipart part: headers plus the JPEG payload.
func writeChunk(mw *multipart.Writer, chunk viewstream.Chunk) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(chunk.Payload)))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(chunk.Payload)
	return err
}

// handleSnapshot serves the current frame immediately, or 503 when
// nothing has been published yet.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	payload, gen := s.sink.Snapshot()
	if gen == 0 {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(payload); err != nil {
		slog.Debug("snapshot write aborted", "error", err)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.sink.Generation() == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"waiting for first frame"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ready"}`)
}
