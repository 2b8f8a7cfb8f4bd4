package session

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/redis/go-redis/v9"
)

// Registry records the identifiers this server has issued
type Registry interface {
	Record(ctx context.Context, user model.UserID) error
	Known(ctx context.Context, user model.UserID) (bool, error)
}

// MemoryRegistry keeps issued identifiers in process memory
type MemoryRegistry struct {
	mu    sync.RWMutex
	users map[model.UserID]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{users: make(map[model.UserID]struct{})}
}

func (r *MemoryRegistry) Record(ctx context.Context, user model.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Known(ctx context.Context, user model.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[user]
	return ok, nil
}

const redisUsersKey = "kioku:users"

// RedisRegistry keeps issued identifiers in a Redis set so that several
// server instances agree on them.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects to the Redis server addressed by url
// (redis://[:password@]host:port/db).
func NewRedisRegistry(ctx context.Context, url string) (*RedisRegistry, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid redis URL")
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", opt.Addr))
	}

	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) Record(ctx context.Context, user model.UserID) error {
	if err := r.client.SAdd(ctx, redisUsersKey, user.String()).Err(); err != nil {
		return goerr.Wrap(err, "failed to record user", goerr.V("user_id", user))
	}
	return nil
}

func (r *RedisRegistry) Known(ctx context.Context, user model.UserID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, redisUsersKey, user.String()).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to look up user", goerr.V("user_id", user))
	}
	return ok, nil
}
