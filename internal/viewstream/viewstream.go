// Package viewstream turns the frame sink into a per-viewer lazy sequence
// of wire chunks.
//
// One Stream is created per connected viewer. Each call to Next suspends
// on the sink until a frame newer than the last one emitted is available,
// then yields it. The sequence is logically infinite: it terminates only
// through cancellation (the normal path when the peer disconnects), sink
// closure, or starvation. A Stream is not seekable or resumable — a
// reconnecting viewer gets a fresh one.
//
// Viewers slower than the producer silently skip intermediate frames;
// per-viewer delivery is strictly monotonic in generation.
package viewstream

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/CyanAutomation/motion-in-ocean/internal/framesink"
)

// Chunk is one element of the wire sequence: a frame payload plus the
// framing metadata the transport layer needs.
type Chunk struct {
	// Payload is the encoded image. Shared by reference; read-only.
	Payload []byte

	// Generation identifies the publish that produced the payload.
	Generation uint64
}

// Stream is the per-viewer cursor over the sink. Next must be called from
// a single goroutine (the connection handler); the counters are safe to
// read from elsewhere.
type Stream struct {
	sink     *framesink.Sink
	id       string
	lastSeen uint64
	emitted  atomic.Uint64
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// FromStart subscribes at generation 0, so the first Next delivers the
// frame already in the sink (if any) instead of blocking for the next
// publish. Snapshot-style viewers want this; live viewers do not, since
// it can re-deliver a stale frame.
func FromStart() Option {
	return func(s *Stream) { s.lastSeen = 0 }
}

// New creates a viewer stream over sink. By default the stream captures
// the sink's current generation, so its first wait blocks for the next
// frame rather than re-delivering the current one.
func New(sink *framesink.Sink, opts ...Option) *Stream {
	s := &Stream{
		sink:     sink,
		id:       uuid.NewString(),
		lastSeen: sink.Generation(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next blocks until a frame newer than the last emitted one is available
// and returns it as a chunk. It returns ctx.Err() when the connection is
// torn down, framesink.ErrClosed on shutdown, or framesink.ErrNoFrame if
// the sink's starvation timeout elapses. Any error is terminal: the
// caller must not call Next again.
func (s *Stream) Next(ctx context.Context) (Chunk, error) {
	payload, gen, err := s.sink.WaitForNext(ctx, s.lastSeen)
	if err != nil {
		return Chunk{}, err
	}
	s.lastSeen = gen
	s.emitted.Add(1)
	return Chunk{Payload: payload, Generation: gen}, nil
}

// ID is the unique identifier assigned to this viewer, used for log
// correlation.
func (s *Stream) ID() string { return s.id }

// LastSeen is the generation of the most recently emitted chunk, or the
// subscribe-time generation if nothing has been emitted yet.
func (s *Stream) LastSeen() uint64 { return s.lastSeen }

// Emitted is the number of chunks this stream has yielded.
func (s *Stream) Emitted() uint64 { return s.emitted.Load() }
