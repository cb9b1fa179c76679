package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nostr-relaypool/internal/types"
)

// RedisStore implements RelayStore as one Redis hash (field = relay URL,
// value = JSON endpoint).
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis store from URL
// URL format: redis://[:password@]host:port/db
func NewRedisStore(redisURL string, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Connection pool settings
	opts.PoolSize = 4
	opts.MinIdleConns = 1
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "relaypool:"
	}
	return &RedisStore{
		client: client,
		key:    prefix + "relays",
	}
}

func (r *RedisStore) Save(ctx context.Context, ep types.RelayEndpoint) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, ep.URL, data).Err()
}

func (r *RedisStore) Get(ctx context.Context, url string) (types.RelayEndpoint, error) {
	data, err := r.client.HGet(ctx, r.key, url).Bytes()
	if err == redis.Nil {
		return types.RelayEndpoint{}, ErrNotFound
	}
	if err != nil {
		return types.RelayEndpoint{}, err
	}

	var ep types.RelayEndpoint
	if err := json.Unmarshal(data, &ep); err != nil {
		return types.RelayEndpoint{}, fmt.Errorf("decode relay %s: %w", url, err)
	}
	return ep, nil
}

func (r *RedisStore) GetAll(ctx context.Context) ([]types.RelayEndpoint, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	all := make(map[string]types.RelayEndpoint, len(values))
	for url, v := range values {
		var ep types.RelayEndpoint
		if err := json.Unmarshal([]byte(v), &ep); err != nil {
			return nil, fmt.Errorf("decode relay %s: %w", url, err)
		}
		all[url] = ep
	}
	return sortedEndpoints(all), nil
}

func (r *RedisStore) Delete(ctx context.Context, url string) error {
	return r.client.HDel(ctx, r.key, url).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
