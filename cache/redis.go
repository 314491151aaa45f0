package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"sips-gamification/logger"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type Redis struct {
	rdb *goredis.Client
	log *logger.Logger
}

// NewRedis connects and pings; a failed ping is returned so the caller can fall back to Memory.
func NewRedis(ctx context.Context, log *logger.Logger, opts RedisOptions) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, log), nil
}

func NewRedisFromClient(rdb *goredis.Client, log *logger.Logger) *Redis {
	return &Redis{rdb: rdb, log: log.With("service", "RedisCache")}
}

func (r *Redis) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false
	}
	if err != nil {
		r.log.Warn("redis get failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.log.Warn("redis decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("redis encode failed", "key", key, "error", err)
		return
	}
	if err := r.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "key", key, "error", err)
	}
}

func (r *Redis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("redis encode failed", "key", key, "error", err)
		return true
	}
	ok, err := r.rdb.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		r.log.Warn("redis setnx failed", "key", key, "error", err)
		return true
	}
	return ok
}

func (r *Redis) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("redis del failed", "keys", keys, "error", err)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
