package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tracechain/internal/identity/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
)

type ParticipantStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *ParticipantStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestParticipantStoreSuite(t *testing.T) {
	suite.Run(t, new(ParticipantStoreSuite))
}

func (s *ParticipantStoreSuite) newParticipant(addr string, role domain.Role) *models.Participant {
	p, err := models.NewParticipant(domain.Address(addr), role, time.Now())
	s.Require().NoError(err)
	return p
}

func (s *ParticipantStoreSuite) TestCreateAndFind() {
	s.Run("assigns increasing ids", func() {
		a := s.newParticipant("a", domain.RoleProducer)
		b := s.newParticipant("b", domain.RoleFactory)
		s.Require().NoError(s.store.CreateIfAvailable(s.ctx, a))
		s.Require().NoError(s.store.CreateIfAvailable(s.ctx, b))
		s.Less(a.ID, b.ID)

		found, err := s.store.FindByAddress(s.ctx, "b")
		s.Require().NoError(err)
		s.Equal(domain.RoleFactory, found.Role)
	})

	s.Run("returns ErrNotFound for unknown address", func() {
		_, err := s.store.FindByAddress(s.ctx, "nobody")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects a second live registration", func() {
		s.Require().NoError(s.store.CreateIfAvailable(s.ctx, s.newParticipant("dup", domain.RoleRetailer)))
		err := s.store.CreateIfAvailable(s.ctx, s.newParticipant("dup", domain.RoleConsumer))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *ParticipantStoreSuite) TestExecute() {
	s.Require().NoError(s.store.CreateIfAvailable(s.ctx, s.newParticipant("x", domain.RoleProducer)))

	s.Run("validate error leaves record untouched", func() {
		_, err := s.store.Execute(s.ctx, "x",
			func(p *models.Participant) error { return p.CanCancel() },
			func(p *models.Participant) { p.ApplyStatus(models.StatusApproved, time.Now()) },
		)
		s.Require().NoError(err)

		_, err = s.store.Execute(s.ctx, "x",
			func(p *models.Participant) error { return p.CanCancel() },
			func(p *models.Participant) { p.ApplyCancel(time.Now()) },
		)
		s.Require().Error(err)

		found, err := s.store.FindByAddress(s.ctx, "x")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, found.Status)
	})

	s.Run("unknown address returns ErrNotFound", func() {
		_, err := s.store.Execute(s.ctx, "ghost",
			func(*models.Participant) error { return nil },
			func(*models.Participant) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ParticipantStoreSuite) TestCanceledRegistrationFreesAddress() {
	first := s.newParticipant("c", domain.RoleConsumer)
	s.Require().NoError(s.store.CreateIfAvailable(s.ctx, first))
	_, err := s.store.Execute(s.ctx, "c",
		func(p *models.Participant) error { return p.CanCancel() },
		func(p *models.Participant) { p.ApplyCancel(time.Now()) },
	)
	s.Require().NoError(err)

	second := s.newParticipant("c", domain.RoleRetailer)
	s.Require().NoError(s.store.CreateIfAvailable(s.ctx, second))

	found, err := s.store.FindByAddress(s.ctx, "c")
	s.Require().NoError(err)
	s.Equal(second.ID, found.ID)
	s.Equal(domain.RoleRetailer, found.Role)
}

func (s *ParticipantStoreSuite) TestListFiltersByStatus() {
	s.Require().NoError(s.store.CreateIfAvailable(s.ctx, s.newParticipant("p1", domain.RoleProducer)))
	s.Require().NoError(s.store.CreateIfAvailable(s.ctx, s.newParticipant("p2", domain.RoleFactory)))
	_, err := s.store.Execute(s.ctx, "p2",
		func(*models.Participant) error { return nil },
		func(p *models.Participant) { p.ApplyStatus(models.StatusApproved, time.Now()) },
	)
	s.Require().NoError(err)

	all, err := s.store.List(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal(domain.Address("p1"), all[0].Address)

	pending := models.StatusPending
	onlyPending, err := s.store.List(s.ctx, &pending)
	s.Require().NoError(err)
	s.Require().Len(onlyPending, 1)
	s.Equal(domain.Address("p1"), onlyPending[0].Address)
}
