package store

import (
	"context"
	"sort"
	"sync"

	"tracechain/internal/transfer/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
)

type entry struct {
	mu       sync.Mutex
	transfer models.Transfer
}

// InMemory stores transfers with one mutex per transfer. Execute holds that
// mutex while the callback runs, so concurrent resolutions of the same
// transfer are serialized and only the first one sees it Pending.
type InMemory struct {
	mu      sync.RWMutex
	lastID  domain.TransferID
	entries map[domain.TransferID]*entry
	byParty map[domain.Address][]domain.TransferID
}

func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[domain.TransferID]*entry),
		byParty: make(map[domain.Address][]domain.TransferID),
	}
}

// Create assigns the next id and stores t.
func (s *InMemory) Create(_ context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	t.ID = s.lastID
	s.entries[t.ID] = &entry{transfer: *t}
	s.byParty[t.From] = append(s.byParty[t.From], t.ID)
	if t.To != t.From {
		s.byParty[t.To] = append(s.byParty[t.To], t.ID)
	}
	return nil
}

func (s *InMemory) lookup(id domain.TransferID) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *InMemory) FindByID(_ context.Context, id domain.TransferID) (*models.Transfer, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, sentinel.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.transfer
	return &cp, nil
}

// Execute runs fn on a copy of the transfer under its lock and stores the
// copy only when fn succeeds.
func (s *InMemory) Execute(ctx context.Context, id domain.TransferID, fn func(ctx context.Context, t *models.Transfer) error) (*models.Transfer, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, sentinel.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.transfer
	if err := fn(ctx, &working); err != nil {
		return nil, err
	}
	e.transfer = working
	cp := working
	return &cp, nil
}

// ListByParticipant returns up to limit transfers involving addr with ids
// greater than after, ascending.
func (s *InMemory) ListByParticipant(_ context.Context, addr domain.Address, after domain.TransferID, limit int) ([]*models.Transfer, error) {
	s.mu.RLock()
	ids := s.byParty[addr]
	start := sort.Search(len(ids), func(i int) bool { return ids[i] > after })
	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := make([]*entry, 0, end-start)
	for _, id := range ids[start:end] {
		page = append(page, s.entries[id])
	}
	s.mu.RUnlock()

	out := make([]*models.Transfer, 0, len(page))
	for _, e := range page {
		e.mu.Lock()
		cp := e.transfer
		e.mu.Unlock()
		out = append(out, &cp)
	}
	return out, nil
}
