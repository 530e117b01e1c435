package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "tankwatch-chart/common/redis"
)

// RedisStreamSource live feed over a Redis stream whose entries carry the
// change JSON in the "data" field.
type RedisStreamSource struct {
	client    *redis.Client
	stream    string
	batchSize int64
	block     time.Duration
	logger    *zap.Logger
}

// NewRedisStreamSource creates a source reading stream.
func NewRedisStreamSource(client *redis.Client, stream string, logger *zap.Logger) *RedisStreamSource {
	return &RedisStreamSource{
		client:    client,
		stream:    stream,
		batchSize: 100,
		block:     2 * time.Second,
		logger:    logger,
	}
}

// WithBlock overrides how long one XREAD waits for new entries.
func (s *RedisStreamSource) WithBlock(block time.Duration) *RedisStreamSource {
	s.block = block
	return s
}

// Subscribe starts reading entries appended after this call.
func (s *RedisStreamSource) Subscribe(ctx context.Context) (Subscription, error) {
	lastID, err := rediscommon.LastStreamID(ctx, s.client, s.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.stream, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{feed: newFeed(int(s.batchSize)), cancel: cancel}
	go s.run(ctx, sub, lastID)

	s.logger.Info("Live stream subscribed",
		zap.String("stream", s.stream),
		zap.String("from_id", lastID),
	)
	return sub, nil
}

func (s *RedisStreamSource) run(ctx context.Context, sub *redisSubscription, lastID string) {
	defer close(sub.events)

	for {
		if ctx.Err() != nil || sub.closed() {
			return
		}

		messages, err := rediscommon.ReadStreamAfter(ctx, s.client, s.stream, lastID, s.batchSize, s.block)
		if err != nil {
			if ctx.Err() != nil || sub.closed() {
				return
			}
			s.logger.Warn("Live stream read failed",
				zap.String("stream", s.stream),
				zap.Error(err),
			)
			sub.fail(fmt.Errorf("read stream %s: %w", s.stream, err))
			return
		}

		for _, msg := range messages {
			lastID = msg.ID
			payload, _ := msg.Values["data"].(string)
			if !sub.deliver(Delivery{ID: msg.ID, Payload: []byte(payload), ReceivedAt: time.Now()}) {
				return
			}
		}
	}
}

type redisSubscription struct {
	*feed
	cancel context.CancelFunc
	once   sync.Once
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}
