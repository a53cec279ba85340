// Package cache is the optional read-through lookup cache in front of the
// relational store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pagetrail/internal/db"
	"github.com/redis/go-redis/v9"
)

// LookupCache resolves websites and sessions, falling back to storage on a miss.
type LookupCache interface {
	FetchWebsite(ctx context.Context, id string) (*db.Website, error)
	FetchSession(ctx context.Context, id string) (*db.Session, error)
	StoreSession(ctx context.Context, session *db.Session) error
}

// Loader is the storage the cache reads through to.
type Loader interface {
	GetWebsite(ctx context.Context, id string) (*db.Website, error)
	GetSession(ctx context.Context, id string) (*db.Session, error)
}

const (
	websiteKeyPrefix = "website:"
	sessionKeyPrefix = "session:"
	baseTTL          = 24 * time.Hour
	ttlJitter        = time.Hour // spreads expiry to avoid stampedes
)

// RedisCache implements LookupCache with JSON values in Redis.
type RedisCache struct {
	client *redis.Client
	loader Loader
	logger *slog.Logger
}

// NewClient parses a redis:// url and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a Redis-backed lookup cache.
func NewRedisCache(client *redis.Client, loader Loader, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, loader: loader, logger: logger}
}

// FetchWebsite returns the cached website or loads and caches it.
func (c *RedisCache) FetchWebsite(ctx context.Context, id string) (*db.Website, error) {
	var website db.Website
	if c.get(ctx, websiteKeyPrefix+id, &website) {
		return &website, nil
	}

	loaded, err := c.loader.GetWebsite(ctx, id)
	if err != nil || loaded == nil {
		return loaded, err
	}
	c.set(ctx, websiteKeyPrefix+id, loaded)
	return loaded, nil
}

// FetchSession returns the cached session or loads and caches it.
func (c *RedisCache) FetchSession(ctx context.Context, id string) (*db.Session, error) {
	var session db.Session
	if c.get(ctx, sessionKeyPrefix+id, &session) {
		return &session, nil
	}

	loaded, err := c.loader.GetSession(ctx, id)
	if err != nil || loaded == nil {
		return loaded, err
	}
	c.set(ctx, sessionKeyPrefix+id, loaded)
	return loaded, nil
}

// StoreSession writes a freshly created session.
func (c *RedisCache) StoreSession(ctx context.Context, session *db.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

// DeleteWebsite evicts a website, e.g. after it is deleted.
func (c *RedisCache) DeleteWebsite(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, websiteKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to invalidate website cache: %w", err)
	}
	return nil
}

// get reports a hit. Redis errors and corrupt entries count as misses.
func (c *RedisCache) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, falling back to storage", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, ttlWithJitter()).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func ttlWithJitter() time.Duration {
	return baseTTL + time.Duration(rand.Int63n(int64(ttlJitter)))
}
