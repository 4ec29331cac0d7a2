package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tracechain/pkg/domain"
)

// Action names a ledger fact worth keeping an audit trail for.
type Action string

const (
	// Identity events
	EventParticipantRegistered    Action = "participant_registered"
	EventParticipantStatusChanged Action = "participant_status_changed"
	EventParticipantCanceled      Action = "participant_canceled"

	// Catalog events
	EventTokenCreated Action = "token_created"

	// Transfer events
	EventTransferProposed Action = "transfer_proposed"
	EventTransferAccepted Action = "transfer_accepted"
	EventTransferRejected Action = "transfer_rejected"
)

// Event is emitted after a ledger operation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    Action
	// Actor is the caller that performed the action.
	Actor domain.Address
	// Counterparty is the other participant touched by the action, if any
	// (the status change target, the transfer recipient).
	Counterparty domain.Address
	TokenID      domain.TokenID
	TransferID   domain.TransferID
	Amount       int64
	// Detail carries a short action-specific value such as the new status.
	Detail    string
	RequestID string
}

// Involves reports whether addr took part in the event.
func (e Event) Involves(addr domain.Address) bool {
	return e.Actor == addr || (e.Counterparty != "" && e.Counterparty == addr)
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can be queried back.
type Lister interface {
	ListByParticipant(ctx context.Context, addr domain.Address) ([]Event, error)
}

// RecentLister returns the newest events first.
type RecentLister interface {
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
