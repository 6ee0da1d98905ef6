package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockStream generates synthetic JPEG frames at the configured rate.
// It exists so the full pipeline — filter, sink, HTTP streaming — runs
// without camera hardware, in tests and on developer machines.
type MockStream struct {
	width  int
	height int
	fps    int

	frames chan Frame
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewMockStream creates a synthetic source. Frames are a moving gradient
// so consecutive frames differ visibly.
func NewMockStream(width, height, fps int) (*MockStream, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", width, height)
	}
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("capture: invalid fps %d (must be 1-60)", fps)
	}
	return &MockStream{
		width:  width,
		height: height,
		fps:    fps,
		frames: make(chan Frame, 4),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins generating frames (implements Provider.Start).
func (m *MockStream) Start(ctx context.Context) (<-chan Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return nil, fmt.Errorf("capture: mock stream already running")
	}
	m.isRunning = true

	slog.Info("mock stream starting",
		"width", m.width,
		"height", m.height,
		"fps", m.fps,
	)

	m.wg.Add(1)
	go m.generate(ctx)

	return m.frames, nil
}

// Stop halts frame generation and closes the channel (implements
// Provider.Stop). Idempotent.
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return nil
	}
	m.isRunning = false

	close(m.stopCh)
	m.wg.Wait()
	close(m.frames)
	return nil
}

// Stats implements Provider.Stats.
func (m *MockStream) Stats() Stats {
	m.mu.Lock()
	running := m.isRunning
	m.mu.Unlock()
	return Stats{
		FrameCount:    m.seq.Load(),
		FramesDropped: m.dropped.Load(),
		FPSTarget:     float64(m.fps),
		IsRunning:     running,
	}
}

func (m *MockStream) generate(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			seq := m.seq.Add(1)
			data, err := m.renderFrame(seq)
			if err != nil {
				slog.Warn("mock stream: frame render failed", "seq", seq, "error", err)
				continue
			}

			frame := Frame{
				Seq:       seq,
				Timestamp: time.Now(),
				Width:     m.width,
				Height:    m.height,
				Data:      data,
				TraceID:   uuid.New().String(),
			}

			select {
			case m.frames <- frame:
			default:
				m.dropped.Add(1)
			}
		}
	}
}

// renderFrame encodes a gradient whose phase depends on seq.
func (m *MockStream) renderFrame(seq uint64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	phase := uint8(seq * 7)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x) + phase,
				G: uint8(y) + phase,
				B: phase,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
