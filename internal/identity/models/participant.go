package models

import (
	"time"

	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
)

// Status is a registration's admission state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusCanceled:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+s)
}

// adminTransitions is the complete set of status changes an Admin may make.
// Approved has no exits; Canceled is only reachable by the participant.
var adminTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusRejected: {StatusApproved},
}

// CanTransition reports whether an Admin may move a registration from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range adminTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Participant is one registration of an address.
//
// Invariants:
//   - Role is fixed at creation; a new role needs a new registration
//   - Only the seeded Admin registration has RoleAdmin
//   - Status changes follow CanTransition, or Pending→Canceled by the owner
//   - A Canceled registration is kept; the address may register again
type Participant struct {
	ID          domain.RegistrationID `json:"id"`
	Address     domain.Address        `json:"address"`
	Role        domain.Role           `json:"role"`
	Status      Status                `json:"status"`
	RequestedAt time.Time             `json:"requested_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewParticipant builds a Pending registration for a requestable role.
func NewParticipant(addr domain.Address, role domain.Role, now time.Time) (*Participant, error) {
	if addr.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !role.IsRequestable() {
		return nil, dErrors.New(dErrors.CodeInvalidRole, "role cannot be requested: "+role.String())
	}
	return &Participant{
		Address:     addr,
		Role:        role,
		Status:      StatusPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}, nil
}

// NewAdmin builds the pre-seeded Admin registration.
func NewAdmin(addr domain.Address, now time.Time) *Participant {
	return &Participant{
		Address:     addr,
		Role:        domain.RoleAdmin,
		Status:      StatusApproved,
		RequestedAt: now,
		UpdatedAt:   now,
	}
}

func (p *Participant) IsApproved() bool {
	return p.Status == StatusApproved
}

func (p *Participant) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// IsLive reports whether the registration still occupies its address.
func (p *Participant) IsLive() bool {
	return p.Status != StatusCanceled
}

// CanSetStatus checks an admin-initiated transition.
func (p *Participant) CanSetStatus(to Status) error {
	if p.IsAdmin() || !CanTransition(p.Status, to) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot move registration from "+string(p.Status)+" to "+string(to))
	}
	return nil
}

// ApplyStatus records an admin-initiated transition. Call CanSetStatus first.
func (p *Participant) ApplyStatus(to Status, now time.Time) {
	p.Status = to
	p.UpdatedAt = now
}

// CanCancel checks a self-initiated withdrawal.
func (p *Participant) CanCancel() error {
	if p.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidTransition, "only pending registrations can be canceled")
	}
	return nil
}

// ApplyCancel withdraws the registration. Call CanCancel first.
func (p *Participant) ApplyCancel(now time.Time) {
	p.Status = StatusCanceled
	p.UpdatedAt = now
}
