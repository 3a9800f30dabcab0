package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	// ErrKafkaTopicRequired is returned when the topic is empty.
	ErrKafkaTopicRequired = errors.New("pkgmessage: kafka topic is required")
	// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
	ErrKafkaBrokersRequired = errors.New("pkgmessage: kafka brokers are required")
)

// KafkaConfig configures the Kafka implementation.
type KafkaConfig struct {
	// Brokers lists Kafka broker addresses.
	Brokers []string

	// Dialer configures broker connections.
	Dialer *kafka.Dialer

	// WriterConfig overrides the default writer configuration.
	WriterConfig *kafka.WriterConfig
}

// Kafka publishes through kafka-go. One writer is created lazily per topic
// and cached for reuse.
type Kafka struct {
	brokers []string
	dialer  *kafka.Dialer
	base    *kafka.WriterConfig

	mu      sync.Mutex
	closed  bool
	writers map[string]*kafka.Writer
}

// NewKafka constructs a Kafka messaging client.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	return &Kafka{
		brokers: append([]string{}, cfg.Brokers...),
		dialer:  cfg.Dialer,
		base:    cfg.WriterConfig,
		writers: map[string]*kafka.Writer{},
	}, nil
}

// Publish sends a message to a Kafka topic.
func (k *Kafka) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrKafkaTopicRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}
	if err := k.ensureOpen(); err != nil {
		return PublishResult{}, err
	}

	kmsg := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Body,
		Time:    time.Now(),
		Headers: kafkaHeaders(msg.Headers),
	}

	if err := k.writerFor(destination).WriteMessages(ctx, kmsg); err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: kafka publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: kmsg.Time}, nil
}

// Close shuts down every cached writer. It is safe to call more than once.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()

		return nil
	}
	k.closed = true
	writers := k.writers
	k.writers = nil
	k.mu.Unlock()

	var closeErr error
	for _, w := range writers {
		closeErr = errors.Join(closeErr, w.Close())
	}

	return closeErr
}

func (k *Kafka) ensureOpen() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return io.ErrClosedPipe
	}

	return nil
}

func (k *Kafka) writerFor(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writers == nil {
		k.writers = map[string]*kafka.Writer{}
	}

	if w, ok := k.writers[topic]; ok {
		return w
	}

	w := kafka.NewWriter(k.writerConfig(topic))
	k.writers[topic] = w

	return w
}

// writerConfig derives the per-topic writer configuration, starting from the
// override when one was supplied.
func (k *Kafka) writerConfig(topic string) kafka.WriterConfig {
	cfg := kafka.WriterConfig{
		Brokers:  k.brokers,
		Balancer: &kafka.LeastBytes{},
		Dialer:   k.dialer,
	}

	if k.base != nil {
		cfg = *k.base
		if len(cfg.Brokers) == 0 {
			cfg.Brokers = k.brokers
		}
		if cfg.Dialer == nil {
			cfg.Dialer = k.dialer
		}
		if cfg.Balancer == nil {
			cfg.Balancer = &kafka.LeastBytes{}
		}
	}

	cfg.Topic = topic

	return cfg
}

func kafkaHeaders(headers []Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for _, h := range headers {
		if h.Key == "" {
			continue
		}

		out = append(out, kafka.Header{Key: h.Key, Value: h.Value})
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
