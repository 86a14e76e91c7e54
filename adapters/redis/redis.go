// Package redis keeps the durable cache in a Redis database.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lborres/folio/core"
)

const DefaultPrefix = "folio:"

type Cache struct {
	client *goredis.Client
	prefix string
}

var _ core.DurableCache = (*Cache)(nil)

// Connect dials addr and pings it before returning the client.
func Connect(addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// New wraps client. An empty prefix uses DefaultPrefix.
func New(client *goredis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", core.ErrCacheNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores value with no expiry; the session snapshot lives until deleted.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.key(key), value, 0).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
