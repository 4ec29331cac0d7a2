package store

import (
	"context"
	"sort"
	"sync"

	"tracechain/internal/balance/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
)

type record struct {
	mu      sync.Mutex
	balance models.Balance
}

// InMemory keeps one mutex per (token, holder) record. Moves that touch two
// records lock them in Key order, so unrelated holders never contend and
// two moves can never deadlock.
type InMemory struct {
	mu      sync.RWMutex
	records map[models.Key]*record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[models.Key]*record)}
}

func (s *InMemory) lookup(key models.Key) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[key]
}

func (s *InMemory) getOrCreate(key models.Key) *record {
	if r := s.lookup(key); r != nil {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[key]; ok {
		return r
	}
	r := &record{balance: models.Zero(key.TokenID, key.Holder)}
	s.records[key] = r
	return r
}

func (s *InMemory) Credit(_ context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	r := s.getOrCreate(models.Key{TokenID: token, Holder: holder})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balance.Available += amount
	return nil
}

// DebitAvailable removes amount from Available. Returns sentinel.ErrInsufficient
// and changes nothing when Available is short.
func (s *InMemory) DebitAvailable(_ context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	r := s.lookup(models.Key{TokenID: token, Holder: holder})
	if r == nil {
		return sentinel.ErrInsufficient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Available < amount {
		return sentinel.ErrInsufficient
	}
	r.balance.Available -= amount
	return nil
}

func (s *InMemory) Lock(_ context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	r := s.lookup(models.Key{TokenID: token, Holder: holder})
	if r == nil {
		return sentinel.ErrInsufficient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Available < amount {
		return sentinel.ErrInsufficient
	}
	r.balance.Available -= amount
	r.balance.Locked += amount
	return nil
}

func (s *InMemory) UnlockToAvailable(_ context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	r := s.lookup(models.Key{TokenID: token, Holder: holder})
	if r == nil {
		return sentinel.ErrInsufficient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Locked < amount {
		return sentinel.ErrInsufficient
	}
	r.balance.Locked -= amount
	r.balance.Available += amount
	return nil
}

// UnlockToRecipient moves amount from from's Locked to to's Available. Both
// records are held for the whole move.
func (s *InMemory) UnlockToRecipient(_ context.Context, token domain.TokenID, from, to domain.Address, amount int64) error {
	fromKey := models.Key{TokenID: token, Holder: from}
	src := s.lookup(fromKey)
	if src == nil {
		return sentinel.ErrInsufficient
	}
	toKey := models.Key{TokenID: token, Holder: to}
	dst := s.getOrCreate(toKey)

	first, second := src, dst
	if toKey.Less(fromKey) {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if first != second {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	if src.balance.Locked < amount {
		return sentinel.ErrInsufficient
	}
	src.balance.Locked -= amount
	dst.balance.Available += amount
	return nil
}

// Get returns the record, or a zero record when the holder never held token.
func (s *InMemory) Get(_ context.Context, token domain.TokenID, holder domain.Address) (models.Balance, error) {
	r := s.lookup(models.Key{TokenID: token, Holder: holder})
	if r == nil {
		return models.Zero(token, holder), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balance, nil
}

// Holdings returns every record of holder ordered by token id. Each record is
// read under its own lock; the slice is not a cross-token snapshot.
func (s *InMemory) Holdings(_ context.Context, holder domain.Address) ([]models.Balance, error) {
	s.mu.RLock()
	var recs []*record
	for key, r := range s.records {
		if key.Holder == holder {
			recs = append(recs, r)
		}
	}
	s.mu.RUnlock()

	out := make([]models.Balance, 0, len(recs))
	for _, r := range recs {
		r.mu.Lock()
		out = append(out, r.balance)
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

// Snapshot locks every record of token in Key order and copies them, so the
// result reflects one instant between moves. The map read lock is held
// throughout so no record of token can appear mid-snapshot; no move asks for
// the map lock while holding a record lock.
func (s *InMemory) Snapshot(_ context.Context, token domain.TokenID) ([]models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []models.Key
	for key := range s.records {
		if key.TokenID == token {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, key := range keys {
		s.records[key].mu.Lock()
	}
	out := make([]models.Balance, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.records[key].balance)
	}
	for _, key := range keys {
		s.records[key].mu.Unlock()
	}
	return out, nil
}
