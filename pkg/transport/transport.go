// Package transport delivers raw report bodies to the receiver loop.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Receive once the transport has been closed.
var ErrClosed = errors.New("transport closed")

// Message is one delivered report body.
type Message struct {
	ID     string
	Source string // agent node id or queue name
	Body   []byte
}

// Transport is a blocking source of report messages for a single consumer.
// Receive returns ctx.Err() when ctx ends; any other error means the
// underlying connection is gone. Ack confirms a message has been fully
// processed.
type Transport interface {
	Receive(ctx context.Context) (Message, error)
	Ack(ctx context.Context, msg Message) error
	Close() error
}
