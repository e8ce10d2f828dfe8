package queue

import (
	"context"
	"errors"
)

// ErrTopicNotFound means the topic is unconfigured or does not exist on the broker.
var ErrTopicNotFound = errors.New("topic not found")

// Message is one publish-only job message. Data is the JSON payload; Attributes
// carry routing metadata the consumer can filter on without decoding Data.
type Message struct {
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers at-least-once with no acknowledgment tracking. Publish returns
// the broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) (string, error)
	Close() error
}
