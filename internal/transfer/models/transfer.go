package models

import (
	"time"

	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Transfer is a proposal to move Amount of TokenID from From to To. The
// amount stays locked in From's balance until the recipient resolves it.
//
// Invariants:
//   - Amount > 0 and never changes
//   - Status leaves Pending exactly once; ResolvedAt is set at that moment
//   - Transfers are never deleted
type Transfer struct {
	ID         domain.TransferID `json:"id"`
	From       domain.Address    `json:"from"`
	To         domain.Address    `json:"to"`
	TokenID    domain.TokenID    `json:"token_id"`
	Amount     int64             `json:"amount"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// NewTransfer builds a Pending transfer. The id is assigned by the store.
func NewTransfer(from, to domain.Address, token domain.TokenID, amount int64, now time.Time) *Transfer {
	return &Transfer{
		From:      from,
		To:        to,
		TokenID:   token,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

func (t *Transfer) IsPending() bool {
	return t.Status == StatusPending
}

// Involves reports whether addr is the sender or the recipient.
func (t *Transfer) Involves(addr domain.Address) bool {
	return t.From == addr || t.To == addr
}

// CanResolve checks that caller may accept or reject the transfer now.
// Recipient is checked before status.
func (t *Transfer) CanResolve(caller domain.Address) error {
	if caller != t.To {
		return dErrors.New(dErrors.CodeNotRecipient, "only the recipient can resolve transfer "+t.ID.String())
	}
	if !t.IsPending() {
		return dErrors.New(dErrors.CodeNotPending, "transfer "+t.ID.String()+" is already "+string(t.Status))
	}
	return nil
}

// ApplyResolution records the terminal status. Call CanResolve first.
func (t *Transfer) ApplyResolution(status Status, now time.Time) {
	t.Status = status
	resolved := now
	t.ResolvedAt = &resolved
}
