package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes to Kafka, mapping topic separators to dots
type KafkaSink struct {
	writer kafkaMessageWriter
}

// NewKafkaSink creates a writer for brokers. Topics are set per message.
func NewKafkaSink(brokers []string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaSink{writer: w}, nil
}

// Name implements Sink
func (s *KafkaSink) Name() string { return "kafka" }

// Publish implements Sink
func (s *KafkaSink) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := kafka.Message{Topic: KafkaTopic(topic), Value: payload}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
