// Package emitter publishes periodic service status to an MQTT broker so
// fleet monitoring can watch camera nodes without polling their HTTP
// endpoints. The emitter is optional: with no broker configured the
// service runs without it.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// connectTimeout bounds the initial broker handshake; after that the
// paho client reconnects on its own.
const connectTimeout = 5 * time.Second

// MQTTEmitter publishes health snapshots as JSON to a single topic.
type MQTTEmitter struct {
	broker   string
	topic    string
	clientID string
	interval time.Duration

	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// New creates an emitter for the given broker and topic. clientID must
// be unique per camera node.
func New(broker, topic, clientID string, interval time.Duration) *MQTTEmitter {
	return &MQTTEmitter{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		interval: interval,
	}
}

// Connect establishes the broker connection with automatic reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.broker))
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.broker,
			"client_id", e.clientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.broker)

	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// IsConnected reports broker connectivity for the health surface.
func (e *MQTTEmitter) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected && e.client != nil && e.client.IsConnected()
}

// Run publishes the status snapshot returned by statusFn every interval
// until ctx is cancelled. Publish failures are counted and logged, never
// fatal.
func (e *MQTTEmitter) Run(ctx context.Context, statusFn func() any) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publish(statusFn())
		}
	}
}

func (e *MQTTEmitter) publish(status any) {
	if !e.IsConnected() {
		return
	}

	payload, err := json.Marshal(status)
	if err != nil {
		slog.Warn("mqtt status marshal failed", "error", err)
		return
	}

	token := e.client.Publish(e.topic, 0, false, payload)
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		slog.Warn("mqtt status publish failed",
			"topic", e.topic,
			"error", token.Error(),
		)
		return
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
}

// Close disconnects from the broker, allowing in-flight messages a short
// grace period.
func (e *MQTTEmitter) Close() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}
