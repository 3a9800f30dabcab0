package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"
)

var (
	// ErrPubSubProjectIDRequired is returned when no project ID and no client are given.
	ErrPubSubProjectIDRequired = errors.New("pkgmessage: pubsub project id is required")
	// ErrPubSubClientRequired is returned when the Pub/Sub client is nil.
	ErrPubSubClientRequired = errors.New("pkgmessage: pubsub client is required")
	// ErrPubSubTopicRequired is returned when the publish topic is empty.
	ErrPubSubTopicRequired = errors.New("pkgmessage: pubsub topic is required")
)

// PubSubConfig configures the Google Pub/Sub implementation. Client takes
// precedence; otherwise a client is built from ProjectID and ClientOptions.
type PubSubConfig struct {
	ProjectID     string
	Client        *pubsub.Client
	ClientOptions []option.ClientOption
}

// PubSub publishes through Google Pub/Sub. Publishers are created lazily per
// topic and cached for reuse.
type PubSub struct {
	client *pubsub.Client

	mu     sync.Mutex
	closed bool
	pubs   map[string]*pubsub.Publisher
}

// NewPubSub constructs a PubSub messaging client.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	client := cfg.Client
	if client == nil {
		if cfg.ProjectID == "" {
			return nil, ErrPubSubProjectIDRequired
		}

		c, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
		if err != nil {
			return nil, fmt.Errorf("pkgmessage: pubsub new client: %w", err)
		}
		client = c
	}

	return &PubSub{client: client, pubs: map[string]*pubsub.Publisher{}}, nil
}

// Publish sends a message to a Pub/Sub topic and waits for the server ack.
func (p *PubSub) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrPubSubTopicRequired
	}
	if err := p.ensureOpen(); err != nil {
		return PublishResult{}, err
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}

	res := p.publisherFor(destination).Publish(ctx, &pubsub.Message{
		Data:        msg.Body,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	})

	id, err := res.Get(ctx)
	if err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: pubsub publish: %w", err)
	}

	return PublishResult{MessageID: id, Topic: destination}, nil
}

// Close stops every cached publisher and closes the client. It is safe to
// call more than once.
func (p *PubSub) Close() error {
	pubs, first := p.detach()
	if !first {
		return nil
	}

	for _, pub := range pubs {
		pub.Stop()
	}

	if p.client == nil {
		return nil
	}

	return p.client.Close()
}

// detach marks the client closed and hands back the publisher cache. The
// second return is false when Close already ran.
func (p *PubSub) detach() ([]*pubsub.Publisher, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false
	}
	p.closed = true

	pubs := make([]*pubsub.Publisher, 0, len(p.pubs))
	for _, pub := range p.pubs {
		pubs = append(pubs, pub)
	}
	p.pubs = nil

	return pubs, true
}

func (p *PubSub) publisherFor(topic string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pubs == nil {
		p.pubs = map[string]*pubsub.Publisher{}
	}

	if pub, ok := p.pubs[topic]; ok {
		return pub
	}

	pub := p.client.Publisher(topic)
	p.pubs[topic] = pub

	return pub
}

func (p *PubSub) ensureOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return ErrPubSubClientRequired
	}
	if p.closed {
		return io.ErrClosedPipe
	}

	return nil
}
