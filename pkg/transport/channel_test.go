package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(4, "test")
	for _, body := range []string{"a", "b", "c"} {
		_, err := ch.Publish(ctx, []byte(body))
		require.NoError(t, err)
	}
	for _, want := range []string{"a", "b", "c"} {
		msg, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Body))
		assert.Equal(t, "test", msg.Source)
		require.NoError(t, ch.Ack(ctx, msg))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ch.Acked())
}

func TestChannelReceiveHonoursContext(t *testing.T) {
	ch := NewChannel(1, "test")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelClosed(t *testing.T) {
	ch := NewChannel(1, "test")
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	_, err := ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ch.Publish(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
