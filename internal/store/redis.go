package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "navsync:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to the namespace to form the hash key.
	Prefix string
}

// Redis keeps each namespace in one hash.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, prefix: opts.Prefix}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) key(ns string) string { return r.prefix + ns }

func (r *Redis) Load(ctx context.Context, ns string) (map[string]string, error) {
	entries, err := r.client.HGetAll(ctx, r.key(ns)).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ns, err)
	}
	return entries, nil
}

func (r *Redis) Save(ctx context.Context, ns string, entries map[string]string) error {
	key := r.key(ns)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) > 0 {
			values := make(map[string]any, len(entries))
			for k, v := range entries {
				values[k] = v
			}
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", ns, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, ns string) error {
	return r.client.Del(ctx, r.key(ns)).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
