package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tracechain/internal/catalog/models"
	"tracechain/pkg/domain"
)

const tokenKeyPrefix = "tracechain:token:"

// Backend is the store the cache reads through to.
type Backend interface {
	NextID(ctx context.Context) (domain.TokenID, error)
	Insert(ctx context.Context, t *models.Token) error
	FindByID(ctx context.Context, id domain.TokenID) (*models.Token, error)
	ListByCreator(ctx context.Context, creator domain.Address) ([]*models.Token, error)
}

// RedisCache is a read-through cache for FindByID. Tokens never change after
// they are committed, so entries only expire to bound memory. Entries are
// filled on read, never on Insert, so a rolled back mint is never cached.
// Redis failures fall back to the backend.
type RedisCache struct {
	Backend
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type RedisCacheOption func(*RedisCache)

func WithCacheLogger(logger *slog.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(backend Backend, client *redis.Client, ttl time.Duration, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		Backend: backend,
		client:  client,
		ttl:     ttl,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func tokenKey(id domain.TokenID) string {
	return tokenKeyPrefix + strconv.FormatUint(uint64(id), 10)
}

func (c *RedisCache) FindByID(ctx context.Context, id domain.TokenID) (*models.Token, error) {
	key := tokenKey(id)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t models.Token
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached token", "token_id", uint64(id))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "token cache read failed", "token_id", uint64(id), "error", err)
	}

	t, err := c.Backend.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(t); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "token cache write failed", "token_id", uint64(id), "error", err)
		}
	}
	return t, nil
}
