package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

// MQTTConfig contains broker settings
type MQTTConfig struct {
	Broker   string // tcp://host:1883
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTSink publishes each capture as one msgpack message.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
	closeOnce sync.Once
}

// NewMQTTSink validates cfg. Call Connect before Deliver.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("delivery: mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("delivery: mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("delivery: mqtt qos must be 0-2, got %d", cfg.QoS)
	}

	s := &MQTTSink{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		s.setConnected(true)
		slog.Info("delivery: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.setConnected(false)
		slog.Warn("delivery: mqtt connection lost, will auto-reconnect",
			"broker", cfg.Broker,
			"error", err,
		)
	}

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// newMQTTSinkWithClient wires an existing client, used by tests.
func newMQTTSinkWithClient(cfg MQTTConfig, client mqtt.Client) *MQTTSink {
	return &MQTTSink{cfg: cfg, client: client, connected: client.IsConnected()}
}

// Connect establishes the broker connection.
func (s *MQTTSink) Connect(ctx context.Context) error {
	slog.Info("delivery: connecting to mqtt broker", "broker", s.cfg.Broker)

	token := s.client.Connect()
	if err := waitToken(ctx, token, 5*time.Second); err != nil {
		return fmt.Errorf("delivery: mqtt connect: %w", err)
	}
	s.setConnected(true)
	return nil
}

// Name implements Sink
func (s *MQTTSink) Name() string { return "mqtt" }

// Deliver implements Sink
func (s *MQTTSink) Deliver(ctx context.Context, c *Capture) error {
	if !s.isConnected() {
		s.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := msgpack.Marshal(c)
	if err != nil {
		s.countError()
		return fmt.Errorf("marshal capture: %w", err)
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	if err := waitToken(ctx, token, 5*time.Second); err != nil {
		s.countError()
		return fmt.Errorf("publish: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()

	slog.Debug("delivery: capture published",
		"topic", s.cfg.Topic,
		"qos", s.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Close disconnects with a 250ms grace period.
func (s *MQTTSink) Close() error {
	s.closeOnce.Do(func() {
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250)
			slog.Info("delivery: mqtt disconnected")
		}
		s.setConnected(false)
	})
	return nil
}

// MQTTStats contains sink statistics
type MQTTStats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns sink statistics
func (s *MQTTSink) Stats() MQTTStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MQTTStats{Connected: s.connected, Published: s.published, Errors: s.errors}
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
