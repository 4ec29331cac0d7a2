//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tracechain/internal/catalog/models"
	"tracechain/internal/catalog/store"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
	"tracechain/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *store.InMemory
	cache   *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.backend = store.NewInMemory()
	s.cache = store.NewRedisCache(s.backend, s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) TestReadThrough() {
	ctx := context.Background()
	id, err := s.cache.NextID(ctx)
	s.Require().NoError(err)
	token := models.NewToken(id, "0xfarm", models.CreateTokenRequest{Name: "Wheat", TotalSupply: 5}, time.Now().UTC())
	s.Require().NoError(s.cache.Insert(ctx, token))

	keys, err := s.redis.Client.Keys(ctx, "tracechain:token:*").Result()
	s.Require().NoError(err)
	s.Empty(keys, "insert must not populate the cache")

	got, err := s.cache.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal("Wheat", got.Name)

	ttl, err := s.redis.Client.TTL(ctx, "tracechain:token:"+id.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	// Served from Redis once the backend no longer has it.
	s.cache = store.NewRedisCache(store.NewInMemory(), s.redis.Client, time.Minute)
	cached, err := s.cache.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal(token.Creator, cached.Creator)
	s.Equal(token.TotalSupply, cached.TotalSupply)
}

func (s *RedisCacheSuite) TestMissIsNotCached() {
	ctx := context.Background()
	_, err := s.cache.FindByID(ctx, domain.TokenID(42))
	s.ErrorIs(err, sentinel.ErrNotFound)

	n, err := s.redis.Client.Exists(ctx, "tracechain:token:42").Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RedisCacheSuite) TestUndecodableEntryFallsBack() {
	ctx := context.Background()
	id, err := s.backend.NextID(ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.backend.Insert(ctx, models.NewToken(id, "0xfarm",
		models.CreateTokenRequest{Name: "Oats", TotalSupply: 3}, time.Now())))
	s.Require().NoError(s.redis.Client.Set(ctx, "tracechain:token:"+id.String(), "not json", time.Minute).Err())

	got, err := s.cache.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal("Oats", got.Name)
}
