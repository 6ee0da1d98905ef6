// Package capture acquires encoded video frames from a source and hands
// them to the frame sink. Sources implement Provider; the Pump connects
// a provider's frame channel to the sink, applying the optional filter
// in between.
package capture

import (
	"context"
	"time"
)

// Frame is a single captured frame with metadata.
//
// Data is shared by reference downstream and must not be modified after
// the frame leaves the provider.
type Frame struct {
	// Seq is a monotonic sequence number assigned by the provider.
	Seq uint64
	// Timestamp is when the frame was captured.
	Timestamp time.Time
	// Width and Height in pixels.
	Width  int
	Height int
	// Data is the JPEG-encoded frame.
	Data []byte
	// TraceID is a unique identifier for log correlation.
	TraceID string
}

// Stats contains provider counters. All fields are snapshots.
type Stats struct {
	// FrameCount is the total number of frames captured.
	FrameCount uint64
	// FramesDropped counts frames dropped because the output channel
	// was full. Drops here are expected under a slow pipeline and are
	// not errors.
	FramesDropped uint64
	// FPSTarget is the configured capture rate.
	FPSTarget float64
	// IsRunning reports whether the source is currently producing.
	IsRunning bool
}

// Provider is the contract for frame acquisition.
//
// Implementations must guarantee:
//   - Start returns immediately; frames arrive asynchronously.
//   - The returned channel stays open until Stop.
//   - Frames are sent non-blocking; when the channel is full the frame
//     is dropped, never queued.
//   - Stop is idempotent.
//   - Stats is safe to call from any goroutine.
type Provider interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
	Stats() Stats
}
