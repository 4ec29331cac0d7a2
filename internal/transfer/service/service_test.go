package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tracechain/internal/balance"
	balancestore "tracechain/internal/balance/store"
	catalogmodels "tracechain/internal/catalog/models"
	catalog "tracechain/internal/catalog/service"
	catalogstore "tracechain/internal/catalog/store"
	idmodels "tracechain/internal/identity/models"
	identity "tracechain/internal/identity/service"
	idstore "tracechain/internal/identity/store"
	"tracechain/internal/platform/metrics"
	"tracechain/internal/transfer/models"
	"tracechain/internal/transfer/service/mocks"
	"tracechain/internal/transfer/store"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/requestcontext"
)

const (
	admin    domain.Address = "0xadmin"
	producer domain.Address = "0xproducer"
	factory  domain.Address = "0xfactory"
	retailer domain.Address = "0xretailer"
	consumer domain.Address = "0xconsumer"
	pending  domain.Address = "0xpending"
)

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	audit     *mocks.MockAuditPublisher
	identity  *identity.Service
	catalog   *catalog.Service
	ledger    *balance.Ledger
	metrics   *metrics.Metrics
	engine    *Engine
	wheat     domain.TokenID
	wheatSize int64
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC))
	s.ctrl = gomock.NewController(s.T())
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.identity = identity.New(idstore.NewInMemory(), admin)
	_, err := s.identity.SeedAdmin(s.ctx)
	s.Require().NoError(err)
	s.approve(producer, domain.RoleProducer)
	s.approve(factory, domain.RoleFactory)
	s.approve(retailer, domain.RoleRetailer)
	s.approve(consumer, domain.RoleConsumer)
	_, err = s.identity.RequestRole(s.ctx, pending, domain.RoleFactory)
	s.Require().NoError(err)

	s.ledger = balance.NewLedger(balancestore.NewInMemory())
	s.catalog = catalog.New(catalogstore.NewInMemory(), s.identity, s.ledger)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.engine = New(store.NewInMemory(), s.identity, s.catalog, s.ledger,
		WithAuditPublisher(s.audit),
		WithMetrics(s.metrics),
		WithPageSize(2),
	)

	s.wheatSize = 100
	token, err := s.catalog.CreateToken(s.ctx, producer, catalogmodels.CreateTokenRequest{
		Name: "Wheat", TotalSupply: s.wheatSize,
	})
	s.Require().NoError(err)
	s.wheat = token.ID
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) approve(addr domain.Address, role domain.Role) {
	_, err := s.identity.RequestRole(s.ctx, addr, role)
	s.Require().NoError(err)
	_, err = s.identity.SetStatus(s.ctx, admin, addr, idmodels.StatusApproved)
	s.Require().NoError(err)
}

func (s *EngineSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *EngineSuite) balance(holder domain.Address) (available, locked int64) {
	b, err := s.ledger.Get(s.ctx, s.wheat, holder)
	s.Require().NoError(err)
	return b.Available, b.Locked
}

func (s *EngineSuite) requireConserved() {
	sum, err := s.ledger.Circulating(s.ctx, s.wheat)
	s.Require().NoError(err)
	s.Equal(s.wheatSize, sum)
}

func (s *EngineSuite) propose(from, to domain.Address, amount int64) *models.Transfer {
	t, err := s.engine.Propose(s.ctx, from, to, s.wheat, amount)
	s.Require().NoError(err)
	return t
}

func (s *EngineSuite) TestScenarioA_ProposeAndAccept() {
	available, _ := s.balance(producer)
	s.Equal(int64(100), available)

	t := s.propose(producer, factory, 30)
	s.Equal(models.StatusPending, t.Status)
	s.Nil(t.ResolvedAt)
	available, locked := s.balance(producer)
	s.Equal(int64(70), available)
	s.Equal(int64(30), locked)
	s.requireConserved()

	accepted, err := s.engine.Accept(s.ctx, factory, t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)
	s.Require().NotNil(accepted.ResolvedAt)

	available, _ = s.balance(factory)
	s.Equal(int64(30), available)
	_, locked = s.balance(producer)
	s.Zero(locked)
	s.requireConserved()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transfers.WithLabelValues("accepted")))
}

func (s *EngineSuite) TestScenarioB_InsufficientBalanceLeavesStateUnchanged() {
	s.propose(producer, factory, 30)

	_, err := s.engine.Propose(s.ctx, producer, factory, s.wheat, 80)
	s.requireCode(err, dErrors.CodeInsufficientBalance)

	available, locked := s.balance(producer)
	s.Equal(int64(70), available)
	s.Equal(int64(30), locked)

	var count int
	for _, err := range s.engine.ListFor(s.ctx, producer) {
		s.Require().NoError(err)
		count++
	}
	s.Equal(1, count)
}

func (s *EngineSuite) TestScenarioC_TopologyEnforced() {
	_, err := s.engine.Propose(s.ctx, producer, consumer, s.wheat, 10)
	s.requireCode(err, dErrors.CodeRoleNotAuthorized)

	// Backwards edges fail regardless of balances.
	s.propose(producer, factory, 50)
	_, err = s.engine.Propose(s.ctx, retailer, producer, s.wheat, 1)
	s.requireCode(err, dErrors.CodeRoleNotAuthorized)
	_, err = s.engine.Propose(s.ctx, factory, producer, s.wheat, 1)
	s.requireCode(err, dErrors.CodeRoleNotAuthorized)

	available, locked := s.balance(producer)
	s.Equal(int64(50), available)
	s.Equal(int64(50), locked)
}

func (s *EngineSuite) TestScenarioD_RejectThenAcceptFails() {
	first := s.propose(producer, factory, 30)
	_, err := s.engine.Accept(s.ctx, factory, first.ID)
	s.Require().NoError(err)

	t, err := s.engine.Propose(s.ctx, factory, retailer, s.wheat, 30)
	s.Require().NoError(err)
	_, locked := s.balance(factory)
	s.Equal(int64(30), locked)

	rejected, err := s.engine.Reject(s.ctx, retailer, t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	available, locked := s.balance(factory)
	s.Equal(int64(30), available)
	s.Zero(locked)

	_, err = s.engine.Accept(s.ctx, retailer, t.ID)
	s.requireCode(err, dErrors.CodeNotPending)
	_, err = s.engine.Reject(s.ctx, retailer, t.ID)
	s.requireCode(err, dErrors.CodeNotPending)

	got, err := s.engine.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.requireConserved()
}

func (s *EngineSuite) TestProposeErrorOrder() {
	cases := []struct {
		name   string
		from   domain.Address
		to     domain.Address
		token  domain.TokenID
		amount int64
		code   dErrors.Code
	}{
		{"unregistered sender", "0xstranger", factory, 999, -1, dErrors.CodeNotApproved},
		{"pending recipient", producer, pending, 999, -1, dErrors.CodeNotApproved},
		{"topology before amount", producer, retailer, 999, -1, dErrors.CodeRoleNotAuthorized},
		{"self transfer hits topology first", producer, producer, 999, 0, dErrors.CodeRoleNotAuthorized},
		{"zero amount before token lookup", producer, factory, 999, 0, dErrors.CodeInvalidAmount},
		{"negative amount", producer, factory, s.wheat, -3, dErrors.CodeInvalidAmount},
		{"unknown token", producer, factory, 999, 5, dErrors.CodeTokenNotFound},
		{"more than available", producer, factory, s.wheat, 101, dErrors.CodeInsufficientBalance},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.engine.Propose(s.ctx, tc.from, tc.to, tc.token, tc.amount)
			s.requireCode(err, tc.code)
		})
	}

	available, locked := s.balance(producer)
	s.Equal(int64(100), available)
	s.Zero(locked)
}

func (s *EngineSuite) TestResolveErrorOrder() {
	t := s.propose(producer, factory, 10)

	_, err := s.engine.Accept(s.ctx, factory, 404)
	s.requireCode(err, dErrors.CodeTransferNotFound)

	_, err = s.engine.Accept(s.ctx, producer, t.ID)
	s.requireCode(err, dErrors.CodeNotRecipient)
	_, err = s.engine.Reject(s.ctx, retailer, t.ID)
	s.requireCode(err, dErrors.CodeNotRecipient)

	_, err = s.engine.Reject(s.ctx, factory, t.ID)
	s.Require().NoError(err)

	// Recipient is checked before status.
	_, err = s.engine.Accept(s.ctx, producer, t.ID)
	s.requireCode(err, dErrors.CodeNotRecipient)
	_, err = s.engine.Accept(s.ctx, factory, t.ID)
	s.requireCode(err, dErrors.CodeNotPending)

	_, err = s.engine.Get(s.ctx, 404)
	s.requireCode(err, dErrors.CodeTransferNotFound)
}

func (s *EngineSuite) TestSeveralPendingNeverExceedHoldings() {
	for range 3 {
		s.propose(producer, factory, 30)
	}
	_, err := s.engine.Propose(s.ctx, producer, factory, s.wheat, 11)
	s.requireCode(err, dErrors.CodeInsufficientBalance)

	available, locked := s.balance(producer)
	s.Equal(int64(10), available)
	s.Equal(int64(90), locked)
	s.requireConserved()
}

func (s *EngineSuite) TestConcurrentProposalsCannotDoubleSpend() {
	const workers = 40
	var wg sync.WaitGroup
	var ok atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.Propose(s.ctx, producer, factory, s.wheat, 7)
			if err == nil {
				ok.Add(1)
				return
			}
			s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))
		}()
	}
	wg.Wait()

	s.Equal(int32(14), ok.Load())
	available, locked := s.balance(producer)
	s.Equal(int64(2), available)
	s.Equal(int64(98), locked)
	s.requireConserved()
}

func (s *EngineSuite) TestConcurrentResolutionsResolveOnce() {
	t := s.propose(producer, factory, 40)

	const workers = 20
	var wg sync.WaitGroup
	var accepted, rejected, notPending atomic.Int32
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.engine.Accept(s.ctx, factory, t.ID)
				if err == nil {
					accepted.Add(1)
				}
			} else {
				_, err = s.engine.Reject(s.ctx, factory, t.ID)
				if err == nil {
					rejected.Add(1)
				}
			}
			if err != nil && dErrors.CodeOf(err) == dErrors.CodeNotPending {
				notPending.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), accepted.Load()+rejected.Load())
	s.Equal(int32(workers-1), notPending.Load())
	_, locked := s.balance(producer)
	s.Zero(locked)
	s.requireConserved()
}

func (s *EngineSuite) TestListFor() {
	a := s.propose(producer, factory, 10)
	b := s.propose(producer, factory, 10)
	_, err := s.engine.Accept(s.ctx, factory, a.ID)
	s.Require().NoError(err)
	c, err := s.engine.Propose(s.ctx, factory, retailer, s.wheat, 5)
	s.Require().NoError(err)

	collect := func(addr domain.Address) []domain.TransferID {
		var ids []domain.TransferID
		for t, err := range s.engine.ListFor(s.ctx, addr) {
			s.Require().NoError(err)
			s.True(t.Involves(addr))
			ids = append(ids, t.ID)
		}
		return ids
	}

	s.Run("ascending across pages", func() {
		s.Equal([]domain.TransferID{a.ID, b.ID, c.ID}, collect(factory))
		s.Equal([]domain.TransferID{a.ID, b.ID}, collect(producer))
		s.Equal([]domain.TransferID{c.ID}, collect(retailer))
		s.Empty(collect(consumer))
	})

	s.Run("restartable", func() {
		seq := s.engine.ListFor(s.ctx, factory)
		var first, second int
		for range seq {
			first++
		}
		for range seq {
			second++
		}
		s.Equal(3, first)
		s.Equal(first, second)
	})

	s.Run("early break stops paging", func() {
		for t, err := range s.engine.ListFor(s.ctx, factory) {
			s.Require().NoError(err)
			s.Equal(a.ID, t.ID)
			break
		}
	})
}

// Audit emission happens after commit and cannot undo a transfer.
func TestEngineAuditEvents(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockAuditPublisher(ctrl)

	ids := identity.New(idstore.NewInMemory(), admin)
	_, err := ids.SeedAdmin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for addr, role := range map[domain.Address]domain.Role{producer: domain.RoleProducer, factory: domain.RoleFactory} {
		if _, err := ids.RequestRole(ctx, addr, role); err != nil {
			t.Fatal(err)
		}
		if _, err := ids.SetStatus(ctx, admin, addr, idmodels.StatusApproved); err != nil {
			t.Fatal(err)
		}
	}
	ledger := balance.NewLedger(balancestore.NewInMemory())
	tokens := catalog.New(catalogstore.NewInMemory(), ids, ledger)
	token, err := tokens.CreateToken(ctx, producer, catalogmodels.CreateTokenRequest{Name: "Oats", TotalSupply: 20})
	if err != nil {
		t.Fatal(err)
	}
	engine := New(store.NewInMemory(), ids, tokens, ledger, WithAuditPublisher(publisher))

	var seen []audit.Event
	record := func(result error) func(context.Context, audit.Event) error {
		return func(_ context.Context, e audit.Event) error {
			seen = append(seen, e)
			return result
		}
	}
	gomock.InOrder(
		publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(record(errors.New("sink down"))),
		publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(record(nil)),
	)

	tr, err := engine.Propose(ctx, producer, factory, token.ID, 5)
	if err != nil {
		t.Fatalf("propose must succeed even when audit fails: %v", err)
	}
	if _, err := engine.Accept(ctx, factory, tr.ID); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.Available(ctx, token.ID, factory)
	if err != nil || got != 5 {
		t.Fatalf("factory available = %d, %v; want 5", got, err)
	}

	if len(seen) != 2 {
		t.Fatalf("emitted %d events, want 2", len(seen))
	}
	proposed, accepted := seen[0], seen[1]
	if proposed.Action != audit.EventTransferProposed || proposed.Actor != producer || proposed.Counterparty != factory || proposed.Amount != 5 {
		t.Errorf("unexpected proposed event: %+v", proposed)
	}
	if accepted.Action != audit.EventTransferAccepted || accepted.Actor != factory || accepted.Counterparty != producer || accepted.TransferID != tr.ID {
		t.Errorf("unexpected accepted event: %+v", accepted)
	}
}
