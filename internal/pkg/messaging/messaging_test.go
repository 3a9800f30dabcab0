package messaging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestNewKafkaRequiresBrokers(t *testing.T) {
	if _, err := NewKafka(KafkaConfig{}); !errors.Is(err, ErrKafkaBrokersRequired) {
		t.Fatalf("expected ErrKafkaBrokersRequired, got %v", err)
	}
}

func TestKafkaPublishValidation(t *testing.T) {
	// Arrange
	k, err := NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("new kafka failed: %v", err)
	}
	ctx := context.Background()

	// Act + Assert
	if _, err := k.Publish(ctx, "", OutgoingMessage{}); !errors.Is(err, ErrKafkaTopicRequired) {
		t.Fatalf("expected ErrKafkaTopicRequired, got %v", err)
	}
	if _, err := k.Publish(ctx, "events", OutgoingMessage{Delay: time.Second}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for delayed delivery, got %v", err)
	}

	if err := k.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := k.Publish(ctx, "events", OutgoingMessage{}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected ErrClosedPipe after close, got %v", err)
	}
}

func TestNewNATSRequiresURL(t *testing.T) {
	if _, err := NewNATS(NATSConfig{}); !errors.Is(err, ErrNATSURLRequired) {
		t.Fatalf("expected ErrNATSURLRequired, got %v", err)
	}
}

func TestNewNSQRequiresProducerAddr(t *testing.T) {
	if _, err := NewNSQ(NSQConfig{}); !errors.Is(err, ErrNSQProducerAddrRequired) {
		t.Fatalf("expected ErrNSQProducerAddrRequired, got %v", err)
	}
}

func TestNewFromDriverUnknown(t *testing.T) {
	if _, err := NewFromDriver(context.Background(), "rabbitmq", FactoryOptions{}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
