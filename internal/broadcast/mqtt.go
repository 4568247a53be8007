package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker   string // host:port or a full tcp:// URL
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// MQTTSink publishes to an MQTT broker
type MQTTSink struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// NewMQTTSink connects to the broker
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gridsmart-backend"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connecting to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s: %w", cfg.Broker, err)
	}

	return &MQTTSink{client: client, qos: cfg.QoS, timeout: cfg.Timeout}, nil
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Name implements Sink
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish implements Sink
func (s *MQTTSink) Publish(ctx context.Context, topic string, payload []byte) error {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight messages 250ms
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
