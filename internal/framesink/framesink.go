// Package framesink holds the single most-recent frame produced by the
// capture pipeline and fans it out to any number of concurrently waiting
// viewers.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The sink is a broadcast rendezvous, not a work queue: every Publish
// replaces the current frame, advances a monotonic generation counter and
// releases all waiters with the same (payload, generation) pair. A viewer
// slower than the producer observes a subset of generations; it never
// accumulates a backlog. Memory stays O(1) frames regardless of viewer
// count or speed.
//
// Synchronization is a mutex plus a notify channel that is closed and
// replaced on every publish. Closing a channel is Go's wake-all primitive
// and, unlike a condition variable, composes with per-waiter context
// cancellation in a single select.
package framesink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned by WaitForNext after Close. Viewers treat it
	// as end-of-stream.
	ErrClosed = errors.New("framesink: sink is closed")

	// ErrNoFrame is returned by WaitForNext when the configured starvation
	// timeout elapses with no publish. It is distinguishable from
	// cancellation so the caller can decide whether to keep the
	// connection open.
	ErrNoFrame = errors.New("framesink: no frame available")
)

// Sink owns the current-frame slot and its generation counter.
//
// Exactly one producer calls Publish; any number of viewers call
// WaitForNext concurrently. All methods are safe for concurrent use,
// but concurrent producers are the caller's bug: frames from two
// producers would interleave with no meaningful order.
//
// Immutability contract: the payload is shared by reference with every
// waiter it is handed to. Neither the producer nor any viewer may modify
// it after Publish.
type Sink struct {
	mu     sync.RWMutex
	frame  []byte
	gen    uint64
	notify chan struct{} // closed on every Publish, then replaced
	closed bool

	starvation time.Duration // 0 = wait forever

	// Operational counters. rejected and published are guarded by mu;
	// waiters is atomic so Stats never contends with blocked viewers.
	published   uint64
	rejected    uint64
	lastPublish time.Time
	waiters     atomic.Int64
}

// Option configures a Sink at construction time.
type Option func(*Sink)

// WithStarvationTimeout bounds how long a single WaitForNext call may
// block with no publish before returning ErrNoFrame. Zero (the default)
// waits forever.
func WithStarvationTimeout(d time.Duration) Option {
	return func(s *Sink) { s.starvation = d }
}

// New creates an empty sink. Generation starts at 0, meaning "no frame
// published yet".
func New(opts ...Option) *Sink {
	s := &Sink{notify: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish replaces the current frame with payload, advances the
// generation counter and wakes every blocked WaitForNext call.
//
// Publish never blocks on viewers: the critical section is a pointer
// swap, a counter increment and a channel close, so the producer's
// capture cadence is never throttled by a stalled viewer.
//
// An empty payload is producer misuse: it is rejected and logged, and
// the producer loop continues unaffected.
func (s *Sink) Publish(payload []byte) {
	if len(payload) == 0 {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		slog.Warn("framesink: rejected empty payload")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.frame = payload
	s.published++
	s.lastPublish = time.Now()

	// Wake-all: everyone selecting on the old channel observes the close,
	// re-checks the generation and reads the frame under the lock. The
	// swap under mu is what makes (payload, gen) tear-free.
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// WaitForNext blocks until the generation counter exceeds after, then
// returns the current payload and its generation. The returned pair is
// always mutually consistent: both are read under the same lock hold.
//
// The wait ends early when ctx is cancelled (returns ctx.Err()), when
// the sink is closed (ErrClosed), or when the configured starvation
// timeout elapses (ErrNoFrame). It never blocks past connection
// teardown: cancellation does not depend on a future publish.
func (s *Sink) WaitForNext(ctx context.Context, after uint64) ([]byte, uint64, error) {
	s.waiters.Add(1)
	defer s.waiters.Add(-1)

	var starved <-chan time.Time
	if s.starvation > 0 {
		t := time.NewTimer(s.starvation)
		defer t.Stop()
		starved = t.C
	}

	for {
		s.mu.RLock()
		if s.gen > after {
			frame, gen := s.frame, s.gen
			s.mu.RUnlock()
			return frame, gen, nil
		}
		if s.closed {
			s.mu.RUnlock()
			return nil, 0, ErrClosed
		}
		notify := s.notify
		s.mu.RUnlock()

		select {
		case <-notify:
			// A publish (or Close) happened; loop and re-check.
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-starved:
			return nil, 0, ErrNoFrame
		}
	}
}

// Snapshot returns the current (payload, generation) pair without
// waiting. Generation 0 with a nil payload means nothing has been
// published yet.
func (s *Sink) Snapshot() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.gen
}

// Generation returns the current generation counter. Viewers capture it
// at subscribe time so their first wait blocks for the next frame
// instead of re-delivering a possibly stale one.
func (s *Sink) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Close wakes every blocked waiter with ErrClosed and makes subsequent
// Publish calls no-ops. Idempotent.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.notify)
	}
	s.mu.Unlock()
}
