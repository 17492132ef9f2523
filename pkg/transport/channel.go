package transport

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Channel is an in-process transport backed by a buffered channel.
type Channel struct {
	ch     chan Message
	done   chan struct{}
	once   sync.Once
	seq    atomic.Int64
	mu     sync.Mutex
	acked  []string
	source string
}

func NewChannel(buffer int, source string) *Channel {
	return &Channel{
		ch:     make(chan Message, buffer),
		done:   make(chan struct{}),
		source: source,
	}
}

// Publish enqueues body, blocking while the buffer is full.
func (c *Channel) Publish(ctx context.Context, body []byte) (Message, error) {
	msg := Message{ID: strconv.FormatInt(c.seq.Add(1), 10), Source: c.source, Body: body}
	select {
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case c.ch <- msg:
		return msg, nil
	}
}

func (c *Channel) Receive(ctx context.Context) (Message, error) {
	select {
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg := <-c.ch:
		return msg, nil
	}
}

func (c *Channel) Ack(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, msg.ID)
	return nil
}

// Acked returns the ids acknowledged so far.
func (c *Channel) Acked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acked...)
}

func (c *Channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
