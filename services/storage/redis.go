package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	backend "github.com/redis/go-redis/v9"
)

// Redis is a storage handle over a Redis server.
type Redis struct {
	client *backend.Client
	prefix string
}

type RedisOption func(*Redis)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis connects to addr, which is either host:port or a redis:// URL.
func NewRedis(addr string, opts ...RedisOption) (*Redis, error) {
	var options *backend.Options
	if strings.Contains(addr, "://") {
		parsed, err := backend.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		options = parsed
	} else {
		options = &backend.Options{Addr: addr}
	}
	return NewRedisFromClient(backend.NewClient(options), opts...), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "nodeflow:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) dataKey(userID string) string { return r.prefix + "data:" + userID }
func (r *Redis) logKey(userID string) string  { return r.prefix + "log:" + userID }

func (r *Redis) Save(ctx context.Context, userID string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	if err := r.client.Set(ctx, r.dataKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, userID string) (map[string]any, error) {
	val, err := r.client.Get(ctx, r.dataKey(userID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeMap(val)
}

func (r *Redis) Log(ctx context.Context, userID string, entry map[string]any) error {
	raw, err := json.Marshal(stampEntry(entry))
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if err := r.client.RPush(ctx, r.logKey(userID), raw).Err(); err != nil {
		return fmt.Errorf("failed to append log in redis: %w", err)
	}
	return nil
}

func (r *Redis) Logs(ctx context.Context, userID string, limit int) ([]map[string]any, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	vals, err := r.client.LRange(ctx, r.logKey(userID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read logs from redis: %w", err)
	}
	raw := make([][]byte, len(vals))
	for i, v := range vals {
		raw[i] = []byte(v)
	}
	return decodeEntries(raw)
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
