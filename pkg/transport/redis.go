package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures a RedisQueue consumer.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	Queue        string
	Consumer     string
	BlockTimeout time.Duration
}

// RedisQueue consumes a redis list. Each message is moved atomically into a
// per-consumer processing list and removed from it on Ack, so a crash between
// receive and commit redelivers the report on the next start.
type RedisQueue struct {
	cli        *redis.Client
	queue      string
	processing string
	timeout    time.Duration
	log        *zap.Logger
}

// DialRedisQueue connects, checks the server and requeues reports a previous
// run of the same consumer left unacknowledged.
func DialRedisQueue(ctx context.Context, opts RedisOptions, log *zap.Logger) (*RedisQueue, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	q := NewRedisQueue(cli, opts.Queue, opts.Consumer, opts.BlockTimeout, log)
	n, err := q.Recover(ctx)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	if n > 0 {
		q.log.Info("requeued unacknowledged reports", zap.Int("count", n))
	}
	return q, nil
}

// NewRedisQueue wraps an existing client.
func NewRedisQueue(cli *redis.Client, queue, consumer string, timeout time.Duration, log *zap.Logger) *RedisQueue {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisQueue{
		cli:        cli,
		queue:      queue,
		processing: processingKey(queue, consumer),
		timeout:    timeout,
		log:        log.With(zap.String("queue", queue), zap.String("consumer", consumer)),
	}
}

func processingKey(queue, consumer string) string {
	return queue + ":processing:" + consumer
}

// Receive blocks until a report is available. Block timeouts are retried
// internally.
func (q *RedisQueue) Receive(ctx context.Context) (Message, error) {
	for {
		body, err := q.cli.BLMove(ctx, q.queue, q.processing, "LEFT", "RIGHT", q.timeout).Result()
		if err == nil {
			return Message{ID: uuid.NewString(), Source: q.queue, Body: []byte(body)}, nil
		}
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return Message{}, ErrClosed
		}
		return Message{}, fmt.Errorf("redis blmove %s: %w", q.queue, err)
	}
}

// Ack drops the message from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	return q.cli.LRem(ctx, q.processing, 1, string(msg.Body)).Err()
}

// Recover moves processing-list leftovers back to the head of the queue,
// oldest first.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.cli.LMove(ctx, q.processing, q.queue, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("redis requeue %s: %w", q.processing, err)
		}
		n++
	}
}

// Publish appends a report body to the queue.
func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	return q.cli.RPush(ctx, q.queue, body).Err()
}

func (q *RedisQueue) Close() error {
	return q.cli.Close()
}
