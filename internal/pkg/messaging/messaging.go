package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnsupported is returned when the selected broker cannot honor a request,
// such as delayed delivery on brokers without native deferral.
var ErrUnsupported = errors.New("pkgmessage: unsupported operation")

// Publisher publishes messages to a destination. The destination is the
// broker's own addressing unit: topic, subject, or queue.
type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// Messaging is a broker-agnostic publishing client. Implementations wrap
// NSQ, NATS, Kafka, or Google Pub/Sub.
type Messaging interface {
	Publisher
	io.Closer
}

// OutgoingMessage is a broker-agnostic message to be published. Fields that a
// broker does not model are ignored by its driver.
type OutgoingMessage struct {
	// Body is the message payload.
	Body []byte

	// Key selects the Kafka partition.
	Key []byte

	// Headers support arbitrary binary values and duplicate keys.
	Headers []Header

	// Attributes carries string metadata for Pub/Sub style brokers.
	Attributes map[string]string

	// OrderingKey serializes delivery on Google Pub/Sub.
	OrderingKey string

	// Delay defers delivery on brokers that support it.
	Delay time.Duration
}

// Header is a key/value pair attached to a message.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult carries whatever publish metadata the broker reports.
type PublishResult struct {
	// MessageID is the broker-assigned message ID.
	MessageID string

	// Topic is the destination the message was published to.
	Topic string

	// Timestamp is when the broker accepted the message.
	Timestamp time.Time
}

// publishedNow stamps a best-effort result for brokers that do not return
// publish metadata.
func publishedNow(topic string) PublishResult {
	return PublishResult{Topic: topic, Timestamp: time.Now()}
}
