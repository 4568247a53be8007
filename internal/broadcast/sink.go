// Package broadcast republishes simulator output to message brokers.
package broadcast

import (
	"context"
	"strings"
)

// Sink delivers one encoded payload to a broker topic
type Sink interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Topics are the broker topics the bridge publishes to
type Topics struct {
	Energy    string
	Alerts    string
	Completed string
}

// NewTopics derives the topic set from a prefix such as "gridsmart"
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "gridsmart"
	}
	return Topics{
		Energy:    prefix + "/energy",
		Alerts:    prefix + "/alerts",
		Completed: prefix + "/predictions/completed",
	}
}

// KafkaTopic maps an MQTT-style topic to a Kafka topic name
func KafkaTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
