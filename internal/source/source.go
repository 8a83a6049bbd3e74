package source

import (
	"context"
	"time"
)

// Message is one leased delivery from the queue. Handle is opaque to
// callers and only valid until the lease expires or the message is
// acknowledged.
type Message struct {
	ID         string
	Body       []byte
	Attributes map[string]string
	Handle     string
}

type ReceiveOptions struct {
	// MaxMessages caps the batch size (1-10 in practice).
	MaxMessages int
	// WaitTime is the long-poll duration for the whole batch.
	WaitTime time.Duration
	// VisibilityTimeout is how long a received message stays leased
	// before it becomes redeliverable.
	VisibilityTimeout time.Duration
}

// Source is an at-least-once message queue. Messages must be acknowledged
// within their lease or they become redeliverable; never acknowledging is
// the caller's way of requesting a retry.
type Source interface {
	Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error)
	Acknowledge(ctx context.Context, handle string) error
	Close() error
}
