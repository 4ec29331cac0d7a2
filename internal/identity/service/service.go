package service

import (
	"context"
	"errors"
	"log/slog"

	"tracechain/internal/identity/models"
	"tracechain/internal/platform/metrics"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/platform/sentinel"
	"tracechain/pkg/requestcontext"
)

// ParticipantStore persists registrations. The newest registration of an
// address is its current one.
type ParticipantStore interface {
	CreateIfAvailable(ctx context.Context, p *models.Participant) error
	FindByAddress(ctx context.Context, addr domain.Address) (*models.Participant, error)
	Execute(ctx context.Context, addr domain.Address, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error)
	List(ctx context.Context, status *models.Status) ([]*models.Participant, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the identity registry: role requests, admission by the Admin,
// and approval checks for the other components.
type Service struct {
	participants   ParticipantStore
	adminAddress   domain.Address
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
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

// New constructs a Service. adminAddress is the single pre-seeded Admin.
func New(participants ParticipantStore, adminAddress domain.Address, opts ...Option) *Service {
	s := &Service{
		participants: participants,
		adminAddress: adminAddress,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedAdmin stores the Admin registration. Calling it again is a no-op, so
// a persistent store survives restarts.
func (s *Service) SeedAdmin(ctx context.Context) (*models.Participant, error) {
	existing, err := s.participants.FindByAddress(ctx, s.adminAddress)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, dErrors.New(dErrors.CodeConflict, "admin address is registered with role "+existing.Role.String())
		}
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
	}

	admin := models.NewAdmin(s.adminAddress, requestcontext.Now(ctx))
	if err := s.participants.CreateIfAvailable(ctx, admin); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return s.SeedAdmin(ctx)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed admin")
	}
	s.logger.InfoContext(ctx, "admin seeded", "address", admin.Address.String())
	return admin, nil
}

// RequestRole creates a Pending registration for addr.
func (s *Service) RequestRole(ctx context.Context, addr domain.Address, role domain.Role) (*models.Participant, error) {
	p, err := models.NewParticipant(addr, role, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.fail("request_role", err)
	}
	if err := s.participants.CreateIfAvailable(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, s.fail("request_role", dErrors.New(dErrors.CodeAlreadyRegistered, "address already has a registration"))
		}
		return nil, s.fail("request_role", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store registration"))
	}

	s.metrics.IncrementRegistrations()
	s.emit(ctx, audit.Event{
		Action: audit.EventParticipantRegistered,
		Actor:  addr,
		Detail: role.String(),
	})
	return p, nil
}

// SetStatus applies an admin decision to target's current registration.
func (s *Service) SetStatus(ctx context.Context, admin, target domain.Address, status models.Status) (*models.Participant, error) {
	if !s.IsAdmin(ctx, admin) {
		return nil, s.fail("set_status", dErrors.New(dErrors.CodeNotAdmin, "caller is not the admin"))
	}

	now := requestcontext.Now(ctx)
	p, err := s.participants.Execute(ctx, target,
		func(p *models.Participant) error { return p.CanSetStatus(status) },
		func(p *models.Participant) { p.ApplyStatus(status, now) },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.fail("set_status", dErrors.New(dErrors.CodeNotRegistered, "address has no registration"))
		}
		if dErrors.CodeOf(err) == dErrors.CodeInvalidTransition {
			return nil, s.fail("set_status", err)
		}
		return nil, s.fail("set_status", dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration"))
	}

	s.metrics.IncrementStatusChange(string(status))
	s.emit(ctx, audit.Event{
		Action:       audit.EventParticipantStatusChanged,
		Actor:        admin,
		Counterparty: target,
		Detail:       string(status),
	})
	return p, nil
}

// Cancel withdraws addr's own Pending registration.
func (s *Service) Cancel(ctx context.Context, addr domain.Address) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	p, err := s.participants.Execute(ctx, addr,
		func(p *models.Participant) error { return p.CanCancel() },
		func(p *models.Participant) { p.ApplyCancel(now) },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.fail("cancel", dErrors.New(dErrors.CodeInvalidTransition, "no pending registration to cancel"))
		}
		if dErrors.CodeOf(err) == dErrors.CodeInvalidTransition {
			return nil, s.fail("cancel", err)
		}
		return nil, s.fail("cancel", dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel registration"))
	}

	s.metrics.IncrementStatusChange(string(models.StatusCanceled))
	s.emit(ctx, audit.Event{
		Action: audit.EventParticipantCanceled,
		Actor:  addr,
	})
	return p, nil
}

// Get returns addr's current registration. found is false when the address
// never registered.
func (s *Service) Get(ctx context.Context, addr domain.Address) (*models.Participant, bool, error) {
	p, err := s.participants.FindByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return p, true, nil
}

func (s *Service) IsAdmin(ctx context.Context, addr domain.Address) bool {
	if addr != s.adminAddress {
		return false
	}
	p, found, err := s.Get(ctx, addr)
	if err != nil {
		s.logger.ErrorContext(ctx, "admin lookup failed", "error", err)
		return false
	}
	return found && p.IsAdmin() && p.IsApproved()
}

// List returns the current registration of every address, oldest first.
// A nil status returns all of them.
func (s *Service) List(ctx context.Context, status *models.Status) ([]*models.Participant, error) {
	out, err := s.participants.List(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return out, nil
}

// RequireApproved returns addr's registration when it is Approved.
func (s *Service) RequireApproved(ctx context.Context, addr domain.Address) (*models.Participant, error) {
	p, found, err := s.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !found || !p.IsApproved() {
		return nil, dErrors.New(dErrors.CodeNotApproved, "participant "+addr.String()+" is not approved")
	}
	return p, nil
}

func (s *Service) fail(op string, err error) error {
	s.metrics.IncrementFailure(op, string(dErrors.CodeOf(err)))
	return err
}

// emit publishes after the change is stored. A failed emit is logged only.
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
