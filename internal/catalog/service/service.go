package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tracechain/internal/catalog/models"
	idmodels "tracechain/internal/identity/models"
	"tracechain/internal/platform/metrics"
	"tracechain/internal/platform/tracing"
	"tracechain/internal/topology"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/platform/sentinel"
	"tracechain/pkg/platform/tx"
	"tracechain/pkg/requestcontext"
)

type TokenStore interface {
	NextID(ctx context.Context) (domain.TokenID, error)
	Insert(ctx context.Context, t *models.Token) error
	FindByID(ctx context.Context, id domain.TokenID) (*models.Token, error)
	ListByCreator(ctx context.Context, creator domain.Address) ([]*models.Token, error)
}

// Identity answers whether a participant may act.
type Identity interface {
	RequireApproved(ctx context.Context, addr domain.Address) (*idmodels.Participant, error)
}

// Ledger receives the minted supply.
type Ledger interface {
	Credit(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the token catalog: minting and provenance lookups.
type Service struct {
	tokens         TokenStore
	identity       Identity
	ledger         Ledger
	runner         tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner makes minting transactional. Without it steps run in order
// with the credit before the token becomes visible.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(tokens TokenStore, identity Identity, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		tokens:   tokens,
		identity: identity,
		ledger:   ledger,
		runner:   tx.Passthrough{},
		logger:   slog.New(slog.DiscardHandler),
		tracer:   tracing.Tracer("tracechain/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateToken mints a token and credits the full supply to creator.
func (s *Service) CreateToken(ctx context.Context, creator domain.Address, req models.CreateTokenRequest) (token *models.Token, err error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CreateToken", trace.WithAttributes(
		attribute.String("creator", creator.String()),
		attribute.Int64("total_supply", req.TotalSupply),
		attribute.Int64("parent_id", int64(req.ParentID)),
	))
	defer func() {
		if err != nil {
			s.metrics.IncrementFailure("create_token", string(dErrors.CodeOf(err)))
		}
		tracing.End(span, err)
	}()

	req.Normalize()
	participant, err := s.identity.RequireApproved(ctx, creator)
	if err != nil {
		return nil, err
	}
	if !topology.CanMint(participant.Role) {
		return nil, dErrors.New(dErrors.CodeRoleNotAuthorized, "role "+participant.Role.String()+" cannot mint")
	}
	if req.TotalSupply <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidSupply, "total supply must be positive")
	}
	if !req.ParentID.IsRoot() {
		if _, err := s.tokens.FindByID(ctx, req.ParentID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeParentNotFound, "parent token "+req.ParentID.String()+" does not exist")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parent token")
		}
	}
	if err := req.ValidateName(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		id, err := s.tokens.NextID(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate token id")
		}
		if err := s.ledger.Credit(txCtx, id, creator, req.TotalSupply); err != nil {
			return err
		}
		token = models.NewToken(id, creator, req, now)
		if err := s.tokens.Insert(txCtx, token); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("token_id", int64(token.ID)))
	s.metrics.RecordTokenCreated(token.TotalSupply)
	s.emit(ctx, audit.Event{
		Action:  audit.EventTokenCreated,
		Actor:   creator,
		TokenID: token.ID,
		Amount:  token.TotalSupply,
		Detail:  token.Name,
	})
	s.logger.InfoContext(ctx, "token created",
		"token_id", uint64(token.ID),
		"creator", creator.String(),
		"supply", token.TotalSupply,
		"request_id", requestcontext.RequestID(ctx),
	)
	return token, nil
}

func (s *Service) GetToken(ctx context.Context, id domain.TokenID) (*models.Token, error) {
	t, err := s.tokens.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTokenNotFound, "token "+id.String()+" does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}
	return t, nil
}

// Lineage returns id and its ancestors, newest first, ending at the root
// raw material.
func (s *Service) Lineage(ctx context.Context, id domain.TokenID) ([]*models.Token, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Lineage", trace.WithAttributes(attribute.Int64("token_id", int64(id))))
	var err error
	defer func() { tracing.End(span, err) }()

	current, err := s.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	chain := []*models.Token{current}
	for !current.IsRoot() {
		// Parents always have smaller ids; anything else is corrupt data.
		if current.ParentID >= current.ID {
			err = dErrors.New(dErrors.CodeInvariantViolation, "token "+current.ID.String()+" has a non-older parent")
			return nil, err
		}
		parent, perr := s.tokens.FindByID(ctx, current.ParentID)
		if perr != nil {
			err = dErrors.Wrap(perr, dErrors.CodeInternal, "failed to load parent token "+current.ParentID.String())
			return nil, err
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// ListByCreator returns the tokens minted by creator ordered by id.
func (s *Service) ListByCreator(ctx context.Context, creator domain.Address) ([]*models.Token, error) {
	out, err := s.tokens.ListByCreator(ctx, creator)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tokens")
	}
	return out, nil
}

// emit publishes after the mint is stored. A failed emit is logged only.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
