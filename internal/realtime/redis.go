package realtime

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// NewRedis creates the Redis client used for notification pub/sub.
func NewRedis(addr, password string) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	log.Printf("Redis client created (addr: %s)", addr)
	return rdb
}

// RedisNotifier publishes per-user notification payloads on
// notifications:<userID> channels.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, userID string, payload []byte) error {
	return n.rdb.Publish(ctx, "notifications:"+userID, payload).Err()
}
