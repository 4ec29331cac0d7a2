package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	catalogmodels "tracechain/internal/catalog/models"
	idmodels "tracechain/internal/identity/models"
	"tracechain/internal/platform/metrics"
	"tracechain/internal/platform/tracing"
	"tracechain/internal/topology"
	"tracechain/internal/transfer/models"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/platform/sentinel"
	"tracechain/pkg/platform/tx"
	"tracechain/pkg/requestcontext"
)

// DefaultPageSize is how many transfers ListFor fetches per store call.
const DefaultPageSize = 100

type TransferStore interface {
	Create(ctx context.Context, t *models.Transfer) error
	FindByID(ctx context.Context, id domain.TransferID) (*models.Transfer, error)
	Execute(ctx context.Context, id domain.TransferID, fn func(ctx context.Context, t *models.Transfer) error) (*models.Transfer, error)
	ListByParticipant(ctx context.Context, addr domain.Address, after domain.TransferID, limit int) ([]*models.Transfer, error)
}

type Identity interface {
	RequireApproved(ctx context.Context, addr domain.Address) (*idmodels.Participant, error)
}

// Tokens resolves token ids; unknown ids fail with CodeTokenNotFound.
type Tokens interface {
	GetToken(ctx context.Context, id domain.TokenID) (*catalogmodels.Token, error)
}

type Ledger interface {
	Lock(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	UnlockToAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	UnlockToRecipient(ctx context.Context, token domain.TokenID, from, to domain.Address, amount int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine runs the two-phase custody transfer: the sender proposes and the
// amount is locked; the recipient accepts (amount moves) or rejects (amount
// returns). Nothing in the engine waits on a counterparty.
type Engine struct {
	transfers      TransferStore
	identity       Identity
	tokens         Tokens
	ledger         Ledger
	runner         tx.Runner
	pageSize       int
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTxRunner makes Propose transactional across the ledger and the
// transfer store.
func WithTxRunner(runner tx.Runner) Option {
	return func(e *Engine) {
		e.runner = runner
	}
}

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func New(transfers TransferStore, identity Identity, tokens Tokens, ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		transfers: transfers,
		identity:  identity,
		tokens:    tokens,
		ledger:    ledger,
		runner:    tx.Passthrough{},
		pageSize:  DefaultPageSize,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    tracing.Tracer("tracechain/transfer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Propose locks amount in from's balance and records a Pending transfer to to.
func (e *Engine) Propose(ctx context.Context, from, to domain.Address, token domain.TokenID, amount int64) (t *models.Transfer, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "transfer.Propose", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
		attribute.Int64("token_id", int64(token)),
		attribute.Int64("amount", amount),
	))
	defer func() {
		e.metrics.ObservePropose(start)
		if err != nil {
			e.metrics.IncrementFailure("propose", string(dErrors.CodeOf(err)))
		}
		tracing.End(span, err)
	}()

	sender, err := e.identity.RequireApproved(ctx, from)
	if err != nil {
		return nil, err
	}
	recipient, err := e.identity.RequireApproved(ctx, to)
	if err != nil {
		return nil, err
	}
	if !topology.CanSendTo(sender.Role, recipient.Role) {
		return nil, dErrors.New(dErrors.CodeRoleNotAuthorized,
			sender.Role.String()+" cannot send to "+recipient.Role.String())
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	if from == to {
		return nil, dErrors.New(dErrors.CodeSelfTransfer, "sender and recipient are the same")
	}
	if _, err := e.tokens.GetToken(ctx, token); err != nil {
		return nil, err
	}

	t = models.NewTransfer(from, to, token, amount, requestcontext.Now(ctx))
	err = e.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := e.ledger.Lock(txCtx, token, from, amount); err != nil {
			return err
		}
		if err := e.transfers.Create(txCtx, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store transfer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("transfer_id", int64(t.ID)))
	e.metrics.IncrementTransfer("proposed")
	e.emit(ctx, audit.EventTransferProposed, t)
	e.logger.InfoContext(ctx, "transfer proposed",
		"transfer_id", uint64(t.ID),
		"token_id", uint64(token),
		"amount", amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return t, nil
}

// Accept moves the locked amount to the recipient. Only the recipient may
// accept, and only while the transfer is Pending.
func (e *Engine) Accept(ctx context.Context, caller domain.Address, id domain.TransferID) (*models.Transfer, error) {
	return e.resolve(ctx, caller, id, models.StatusAccepted)
}

// Reject returns the locked amount to the sender's Available balance.
func (e *Engine) Reject(ctx context.Context, caller domain.Address, id domain.TransferID) (*models.Transfer, error) {
	return e.resolve(ctx, caller, id, models.StatusRejected)
}

func (e *Engine) resolve(ctx context.Context, caller domain.Address, id domain.TransferID, outcome models.Status) (t *models.Transfer, err error) {
	op := "accept"
	action := audit.EventTransferAccepted
	if outcome == models.StatusRejected {
		op = "reject"
		action = audit.EventTransferRejected
	}
	ctx, span := e.tracer.Start(ctx, "transfer."+op, trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.Int64("transfer_id", int64(id)),
	))
	defer func() {
		if err != nil {
			e.metrics.IncrementFailure(op, string(dErrors.CodeOf(err)))
		}
		tracing.End(span, err)
	}()

	now := requestcontext.Now(ctx)
	t, err = e.transfers.Execute(ctx, id, func(txCtx context.Context, t *models.Transfer) error {
		if err := t.CanResolve(caller); err != nil {
			return err
		}
		var moveErr error
		if outcome == models.StatusAccepted {
			moveErr = e.ledger.UnlockToRecipient(txCtx, t.TokenID, t.From, t.To, t.Amount)
		} else {
			moveErr = e.ledger.UnlockToAvailable(txCtx, t.TokenID, t.From, t.Amount)
		}
		if dErrors.HasCode(moveErr, dErrors.CodeInsufficientBalance) {
			// A Pending transfer always has its amount locked.
			return dErrors.Wrap(moveErr, dErrors.CodeInvariantViolation, "locked balance missing for transfer "+t.ID.String())
		}
		if moveErr != nil {
			return moveErr
		}
		t.ApplyResolution(outcome, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTransferNotFound, "transfer "+id.String()+" does not exist")
		}
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve transfer")
		}
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			e.logger.ErrorContext(ctx, "transfer resolution hit an inconsistent ledger",
				"transfer_id", uint64(id),
				"error", err,
			)
		}
		return nil, err
	}

	e.metrics.IncrementTransfer(string(outcome))
	e.emit(ctx, action, t)
	return t, nil
}

func (e *Engine) Get(ctx context.Context, id domain.TransferID) (*models.Transfer, error) {
	t, err := e.transfers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTransferNotFound, "transfer "+id.String()+" does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transfer")
	}
	return t, nil
}

// ListFor yields every transfer addr sent or received, ascending by id. The
// sequence pages through the store lazily; ranging over it again starts over.
// A store error is yielded once and ends the sequence.
func (e *Engine) ListFor(ctx context.Context, addr domain.Address) iter.Seq2[*models.Transfer, error] {
	return func(yield func(*models.Transfer, error) bool) {
		var after domain.TransferID
		for {
			page, err := e.transfers.ListByParticipant(ctx, addr, after, e.pageSize)
			if err != nil {
				yield(nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transfers"))
				return
			}
			for _, t := range page {
				if !yield(t, nil) {
					return
				}
				after = t.ID
			}
			if len(page) < e.pageSize {
				return
			}
		}
	}
}

// emit publishes after the change is stored. A failed emit is logged only.
func (e *Engine) emit(ctx context.Context, action audit.Action, t *models.Transfer) {
	if e.auditPublisher == nil {
		return
	}
	actor, counterparty := t.From, t.To
	if action != audit.EventTransferProposed {
		actor, counterparty = t.To, t.From
	}
	event := audit.Event{
		Action:       action,
		Actor:        actor,
		Counterparty: counterparty,
		TokenID:      t.TokenID,
		TransferID:   t.ID,
		Amount:       t.Amount,
		Detail:       string(t.Status),
		RequestID:    requestcontext.RequestID(ctx),
	}
	if err := e.auditPublisher.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"transfer_id", uint64(t.ID),
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
