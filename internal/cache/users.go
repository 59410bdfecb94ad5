// Package cache provides a Redis read-through cache for the user directory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"teamtask/internal/domain"
	"teamtask/internal/repo"
)

type backend interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Users caches user records by id. Password hashes are never cached.
// A nil redis client turns the cache into a pass-through.
type Users struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

func NewUsers(base backend, client *redis.Client, ttl time.Duration) *Users {
	if base == nil {
		panic("cache.NewUsers: base directory is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Users{base: base, redis: client, ttl: ttl}
}

func userKey(id string) string { return "teamtask:user:" + id }

func (c *Users) GetUser(ctx context.Context, id string) (domain.User, error) {
	if u, ok := c.load(ctx, id); ok {
		return u, nil
	}
	u, err := c.base.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	c.store(ctx, u)
	u.PasswordHash = ""
	return u, nil
}

// UserExists reports whether id names a stored user. Misses are not cached
// so a user created later is visible immediately.
func (c *Users) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := c.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Evict drops the cached record of id.
func (c *Users) Evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, userKey(id)).Err()
}

func (c *Users) load(ctx context.Context, id string) (domain.User, bool) {
	if c.redis == nil {
		return domain.User{}, false
	}
	data, err := c.redis.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.redis.Del(ctx, userKey(id)).Err()
		}
		return domain.User{}, false
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID != id {
		_ = c.redis.Del(ctx, userKey(id)).Err()
		return domain.User{}, false
	}
	return u, true
}

func (c *Users) store(ctx context.Context, u domain.User) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, userKey(u.ID), data, c.ttl).Err()
}

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
