package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// CameraStream captures JPEG frames from a local video device through a
// GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter → jpegenc → appsink
//
// Encoding to JPEG inside the pipeline keeps the Go side a plain byte
// stream; the appsink callback copies the buffer and forwards it
// non-blocking, dropping when the pipeline downstream is slower than the
// sensor.
type CameraStream struct {
	device    string
	width     int
	height    int
	targetFPS int

	pipeline *gst.Pipeline
	appsink  *app.Sink

	frames chan Frame
	mu     sync.Mutex

	cancel context.CancelFunc

	isRunning    bool
	framesClosed atomic.Bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewCameraStream creates a camera source with fail-fast validation.
func NewCameraStream(device string, width, height, fps int) (*CameraStream, error) {
	if device == "" {
		return nil, fmt.Errorf("capture: camera device is required")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", width, height)
	}
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("capture: invalid fps %d (must be 1-60)", fps)
	}
	return &CameraStream{
		device:    device,
		width:     width,
		height:    height,
		targetFPS: fps,
		frames:    make(chan Frame, 4),
	}, nil
}

// Start builds the pipeline and sets it to PLAYING (implements
// Provider.Start). Frames arrive asynchronously once the pipeline
// negotiates with the device.
func (c *CameraStream) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil, fmt.Errorf("capture: camera stream already running")
	}

	if err := c.buildPipeline(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.pipeline.SetState(gst.StatePlaying); err != nil {
		cancel()
		return nil, fmt.Errorf("capture: failed to start pipeline: %w", err)
	}
	c.isRunning = true

	slog.Info("camera stream starting",
		"device", c.device,
		"width", c.width,
		"height", c.height,
		"fps", c.targetFPS,
	)

	// Mirror context cancellation into Stop so connection of the source
	// to the process lifecycle needs no extra wiring in main.
	go func() {
		<-runCtx.Done()
		if err := c.Stop(); err != nil {
			slog.Warn("camera stream: stop after cancel failed", "error", err)
		}
	}()

	return c.frames, nil
}

// Stop tears down the pipeline and closes the frame channel (implements
// Provider.Stop). Idempotent.
func (c *CameraStream) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRunning {
		return nil
	}
	c.isRunning = false

	if c.cancel != nil {
		c.cancel()
	}

	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("camera stream: pipeline teardown failed", "error", err)
	}

	if c.framesClosed.CompareAndSwap(false, true) {
		close(c.frames)
	}

	slog.Info("camera stream stopped",
		"frames", c.seq.Load(),
		"dropped", c.dropped.Load(),
	)
	return nil
}

// Stats implements Provider.Stats.
func (c *CameraStream) Stats() Stats {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()
	return Stats{
		FrameCount:    c.seq.Load(),
		FramesDropped: c.dropped.Load(),
		FPSTarget:     float64(c.targetFPS),
		IsRunning:     running,
	}
}

func (c *CameraStream) buildPipeline() error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("capture: failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", c.device)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("capture: failed to create videoconvert: %w", err)
	}

	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("capture: failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("capture: failed to create capsfilter: %w", err)
	}
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,width=%d,height=%d,framerate=%d/1",
		c.width, c.height, c.targetFPS,
	))
	capsfilter.SetProperty("caps", caps)

	enc, err := gst.NewElement("jpegenc")
	if err != nil {
		return fmt.Errorf("capture: failed to create jpegenc: %w", err)
	}
	enc.SetProperty("quality", 85)

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("capture: failed to create appsink: %w", err)
	}
	// Latest-frame discipline starts at the sink element itself: one
	// buffer, drop when unread.
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", false)

	elements := []*gst.Element{src, convert, scale, capsfilter, enc, appsink.Element}
	if err := pipeline.AddMany(elements...); err != nil {
		return fmt.Errorf("capture: failed to assemble pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(elements...); err != nil {
		return fmt.Errorf("capture: failed to link pipeline: %w", err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onNewSample,
	})

	c.pipeline = pipeline
	c.appsink = appsink
	return nil
}

// onNewSample pulls one JPEG sample from the appsink, copies it out of
// the GStreamer buffer and forwards it non-blocking. A single bad sample
// is skipped rather than terminating the stream.
func (c *CameraStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("camera stream: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("camera stream: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("camera stream: empty buffer received")
		return gst.FlowOK
	}

	// Copy out: GStreamer reuses the buffer after Unmap.
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	seq := c.seq.Add(1)
	frame := Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     c.width,
		Height:    c.height,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	if c.framesClosed.Load() {
		return gst.FlowEOS
	}

	select {
	case c.frames <- frame:
	default:
		c.dropped.Add(1)
		slog.Debug("camera stream: dropping frame, channel full", "seq", seq)
	}

	return gst.FlowOK
}
