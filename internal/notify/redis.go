package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBackend publishes event documents on a Pub/Sub channel, pushes them
// onto a list, or both.
type RedisBackend struct {
	client  redis.UniversalClient
	channel string
	listKey string
}

func NewRedisBackend(addr, channel, listKey string) *RedisBackend {
	if channel == "" && listKey == "" {
		channel = "vaultoss-events"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisBackend{client: client, channel: channel, listKey: listKey}
}

func (r *RedisBackend) Name() string {
	return "redis"
}

func (r *RedisBackend) Publish(ctx context.Context, payload []byte) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		if r.channel != "" {
			p.Publish(ctx, r.channel, payload)
		}
		if r.listKey != "" {
			p.LPush(ctx, r.listKey, payload)
		}
		return nil
	})
	return err
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
