package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/redis/go-redis/v9"
)

// RedisSource subscribes to a pub/sub channel carrying product JSON.
type RedisSource struct {
	client  *redis.Client
	channel string
}

func NewRedisSource(client *redis.Client, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Name() string { return "redis" }

func (s *RedisSource) Open(ctx context.Context) (inventory.Stream, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}
	// go-redis re-subscribes on its own after network errors; the channel
	// only closes when the PubSub is closed.
	return &redisStream{ps: ps, ch: ps.Channel()}, nil
}

type redisStream struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

func (s *redisStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return []byte(msg.Payload), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *redisStream) Close() error {
	return s.ps.Close()
}
