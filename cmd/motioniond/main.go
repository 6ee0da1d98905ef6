// Command motioniond is the camera streaming daemon: it captures frames
// from the camera (or a synthetic source), optionally runs edge
// detection, and serves the result to any number of HTTP viewers as a
// live MJPEG stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/CyanAutomation/motion-in-ocean/internal/capture"
	"github.com/CyanAutomation/motion-in-ocean/internal/config"
	"github.com/CyanAutomation/motion-in-ocean/internal/emitter"
	"github.com/CyanAutomation/motion-in-ocean/internal/filter"
	"github.com/CyanAutomation/motion-in-ocean/internal/framesink"
	"github.com/CyanAutomation/motion-in-ocean/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting motion-in-ocean",
		"config", *configPath,
		"width", cfg.Stream.Width,
		"height", cfg.Stream.Height,
		"fps", cfg.Stream.FPS,
		"edge_detection", cfg.Stream.EdgeDetection,
		"source", cfg.Camera.Source,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Frame sink: the rendezvous between the capture pipeline and the
	// HTTP viewers.
	var sinkOpts []framesink.Option
	if cfg.Stream.StarvationTimeoutS > 0 {
		sinkOpts = append(sinkOpts,
			framesink.WithStarvationTimeout(time.Duration(cfg.Stream.StarvationTimeoutS)*time.Second))
	}
	sink := framesink.New(sinkOpts...)

	// Capture source.
	provider, err := newProvider(cfg)
	if err != nil {
		slog.Error("failed to create capture source", "error", err)
		os.Exit(1)
	}

	frames, err := provider.Start(ctx)
	if err != nil {
		slog.Error("failed to start capture source", "error", err)
		os.Exit(1)
	}

	// Edge filter is swappable at runtime through config hot reload.
	var filterMu sync.RWMutex
	var edge filter.Filter
	if cfg.Stream.EdgeDetection {
		edge = filter.NewEdge(1.0)
	}
	currentFilter := func() filter.Filter {
		filterMu.RLock()
		defer filterMu.RUnlock()
		return edge
	}

	go capture.Pump(ctx, frames, filterFunc(currentFilter), sink)

	// Optional MQTT status emitter.
	var statusEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		statusEmitter = emitter.New(
			cfg.MQTT.Broker,
			cfg.MQTT.Topic,
			"motion-in-ocean-"+uuid.NewString()[:8],
			time.Duration(cfg.MQTT.IntervalS)*time.Second,
		)
		if err := statusEmitter.Connect(ctx); err != nil {
			// Status publishing is best-effort; the stream works without it.
			slog.Warn("mqtt emitter unavailable, continuing without it", "error", err)
			statusEmitter = nil
		} else {
			defer statusEmitter.Close()
		}
	}

	probes := server.Probes{
		StreamConnected: func() bool { return provider.Stats().IsRunning },
		MQTTConnected: func() bool {
			return statusEmitter != nil && statusEmitter.IsConnected()
		},
	}

	srv := server.New(cfg.Server.Addr, sink, cfg.Stream.Width, cfg.Stream.Height, probes)

	if statusEmitter != nil {
		go statusEmitter.Run(ctx, func() any { return srv.Health() })
	}

	// Hot-reload the config file; only the filter toggle and log-visible
	// settings apply live, the rest needs a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(newCfg *config.Config) {
				filterMu.Lock()
				if newCfg.Stream.EdgeDetection && edge == nil {
					edge = filter.NewEdge(1.0)
					slog.Info("edge detection enabled")
				} else if !newCfg.Stream.EdgeDetection && edge != nil {
					edge = nil
					slog.Info("edge detection disabled")
				}
				filterMu.Unlock()

				if newCfg.Stream.FPS != cfg.Stream.FPS ||
					newCfg.Stream.Width != cfg.Stream.Width ||
					newCfg.Stream.Height != cfg.Stream.Height {
					slog.Warn("capture settings changed in config file, restart required to apply")
				}
			})
			if err != nil {
				slog.Warn("config watcher failed", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			slog.Error("http server error", "error", err)
		}
	}

	// Orderly teardown: stop accepting viewers, wake the remaining ones,
	// then stop the capture side.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown incomplete", "error", err)
	}

	sink.Close()

	if err := provider.Stop(); err != nil {
		slog.Warn("capture source shutdown failed", "error", err)
	}

	slog.Info("motion-in-ocean stopped")
}

// newProvider selects the capture source from config.
func newProvider(cfg *config.Config) (capture.Provider, error) {
	switch cfg.Camera.Source {
	case "mock":
		return capture.NewMockStream(cfg.Stream.Width, cfg.Stream.Height, cfg.Stream.FPS)
	default:
		return capture.NewCameraStream(cfg.Camera.Device, cfg.Stream.Width, cfg.Stream.Height, cfg.Stream.FPS)
	}
}

// filterFunc adapts a filter lookup closure to the filter.Filter
// interface so the pump re-reads the active filter on every frame.
type filterFunc func() filter.Filter

func (f filterFunc) Apply(jpegData []byte) ([]byte, error) {
	if active := f(); active != nil {
		return active.Apply(jpegData)
	}
	return jpegData, nil
}
