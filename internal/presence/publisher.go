package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
)

// Publisher mirrors room broadcasts to out-of-process listeners.
type Publisher interface {
	Publish(ctx context.Context, code string, frame []byte) error
}

// RedisPublisher publishes frames on the room's monitor channel.
type RedisPublisher struct {
	rdb redis.Cmdable
}

func NewRedisPublisher(rdb redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, code string, frame []byte) error {
	return p.rdb.Publish(ctx, config.CacheKey.RoomMonitorChannel(code), frame).Err()
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }
