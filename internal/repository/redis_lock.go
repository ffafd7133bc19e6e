package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultSweepLockKey = "booking:reaper:sweep"

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisSweepLock is a short lived mutual exclusion between replicas running
// the expiry reaper. Only the instance that set the key may delete it.
type RedisSweepLock struct {
	client redis.UniversalClient
	key    string
	owner  string
}

func NewRedisSweepLock(client redis.UniversalClient, key string) *RedisSweepLock {
	if key == "" {
		key = DefaultSweepLockKey
	}

	return &RedisSweepLock{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
	}
}

func (l *RedisSweepLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
}

func (l *RedisSweepLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}
