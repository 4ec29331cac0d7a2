// Package balance is the ledger of token holdings. Every quantity of a token
// sits in exactly one holder's Available or Locked bucket.
package balance

import (
	"context"
	"errors"

	"tracechain/internal/balance/models"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	"tracechain/pkg/platform/sentinel"
)

// Store applies balance moves atomically per call. Moves that cannot be
// applied return sentinel.ErrInsufficient and leave every record unchanged.
type Store interface {
	Credit(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	DebitAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	Lock(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	UnlockToAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error
	UnlockToRecipient(ctx context.Context, token domain.TokenID, from, to domain.Address, amount int64) error
	Get(ctx context.Context, token domain.TokenID, holder domain.Address) (models.Balance, error)
	Holdings(ctx context.Context, holder domain.Address) ([]models.Balance, error)
	Snapshot(ctx context.Context, token domain.TokenID) ([]models.Balance, error)
}

// Ledger validates amounts and translates store facts into domain errors.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Credit adds amount to holder's Available. Used at mint.
func (l *Ledger) Credit(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.store.Credit(ctx, token, holder, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit balance")
	}
	return nil
}

func (l *Ledger) DebitAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return translate(l.store.DebitAvailable(ctx, token, holder, amount), "available balance too low")
}

// Lock moves amount from Available to Locked while a transfer is pending.
func (l *Ledger) Lock(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return translate(l.store.Lock(ctx, token, holder, amount), "available balance too low")
}

// UnlockToAvailable returns a locked amount to its owner.
func (l *Ledger) UnlockToAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return translate(l.store.UnlockToAvailable(ctx, token, holder, amount), "locked balance too low")
}

// UnlockToRecipient releases from's locked amount into to's Available.
func (l *Ledger) UnlockToRecipient(ctx context.Context, token domain.TokenID, from, to domain.Address, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return translate(l.store.UnlockToRecipient(ctx, token, from, to, amount), "locked balance too low")
}

// Get returns holder's record; a holder that never held token has a zero record.
func (l *Ledger) Get(ctx context.Context, token domain.TokenID, holder domain.Address) (models.Balance, error) {
	b, err := l.store.Get(ctx, token, holder)
	if err != nil {
		return models.Balance{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return b, nil
}

func (l *Ledger) Available(ctx context.Context, token domain.TokenID, holder domain.Address) (int64, error) {
	b, err := l.Get(ctx, token, holder)
	return b.Available, err
}

func (l *Ledger) Locked(ctx context.Context, token domain.TokenID, holder domain.Address) (int64, error) {
	b, err := l.Get(ctx, token, holder)
	return b.Locked, err
}

// Holdings lists holder's records by token id, skipping emptied ones.
func (l *Ledger) Holdings(ctx context.Context, holder domain.Address) ([]models.Balance, error) {
	all, err := l.store.Holdings(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list holdings")
	}
	out := all[:0]
	for _, b := range all {
		if !b.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

// Snapshot reads every record of token at one instant.
func (l *Ledger) Snapshot(ctx context.Context, token domain.TokenID) ([]models.Balance, error) {
	out, err := l.store.Snapshot(ctx, token)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot balances")
	}
	return out, nil
}

// Circulating sums Available and Locked over all holders of token. It equals
// the token's total supply whenever the ledger is consistent.
func (l *Ledger) Circulating(ctx context.Context, token domain.TokenID) (int64, error) {
	snap, err := l.Snapshot(ctx, token)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, b := range snap {
		sum += b.Total()
	}
	return sum, nil
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrInsufficient):
		return dErrors.Wrap(err, dErrors.CodeInsufficientBalance, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "balance update failed")
	}
}
