// Package messaging provides a broker-agnostic API for publishing messages.
//
// The goal is to keep business code independent from the underlying messaging
// system (Kafka, NATS, NSQ, Google Pub/Sub, etc). Modules publish domain
// events through the Publisher interface and downstream services consume them
// with whatever tooling fits their side; this process never consumes.
package messaging
