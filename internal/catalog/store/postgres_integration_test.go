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

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(context.Background()))
}

func (s *PostgresStoreSuite) insert(creator domain.Address, name string, parent domain.TokenID) *models.Token {
	ctx := context.Background()
	id, err := s.store.NextID(ctx)
	s.Require().NoError(err)
	t := models.NewToken(id, creator, models.CreateTokenRequest{
		Name: name, TotalSupply: 10, Metadata: `{"grade":"A"}`, ParentID: parent,
	}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.Insert(ctx, t))
	return t
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	ctx := context.Background()
	wheat := s.insert("0xfarm", "Wheat", 0)
	flour := s.insert("0xmill", "Flour", wheat.ID)
	s.Greater(flour.ID, wheat.ID)

	got, err := s.store.FindByID(ctx, flour.ID)
	s.Require().NoError(err)
	s.Equal(flour.Name, got.Name)
	s.Equal(wheat.ID, got.ParentID)
	s.Equal(`{"grade":"A"}`, got.Metadata)
	s.True(flour.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.FindByID(ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Insert(ctx, wheat), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestListByCreator() {
	ctx := context.Background()
	a := s.insert("0xfarm", "Wheat", 0)
	s.insert("0xmill", "Flour", a.ID)
	b := s.insert("0xfarm", "Barley", 0)

	mine, err := s.store.ListByCreator(ctx, "0xfarm")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(a.ID, mine[0].ID)
	s.Equal(b.ID, mine[1].ID)
}
