package store

import (
	"context"
	"sort"
	"sync"

	"tracechain/internal/identity/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
)

// InMemory keeps every registration, newest last per address. Identity
// traffic is light, so one mutex guards the whole store.
type InMemory struct {
	mu      sync.RWMutex
	nextID  domain.RegistrationID
	history map[domain.Address][]*models.Participant
}

func NewInMemory() *InMemory {
	return &InMemory{history: make(map[domain.Address][]*models.Participant)}
}

// CreateIfAvailable stores p as the address's newest registration and assigns
// its ID. Returns sentinel.ErrAlreadyUsed while a live registration exists.
func (s *InMemory) CreateIfAvailable(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.current(p.Address); current != nil && current.IsLive() {
		return sentinel.ErrAlreadyUsed
	}
	s.nextID++
	p.ID = s.nextID
	stored := *p
	s.history[p.Address] = append(s.history[p.Address], &stored)
	return nil
}

func (s *InMemory) FindByAddress(_ context.Context, addr domain.Address) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current := s.current(addr)
	if current == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *current
	return &cp, nil
}

// Execute validates and mutates the newest registration of addr while holding
// the store lock. A validate error leaves the record untouched.
func (s *InMemory) Execute(_ context.Context, addr domain.Address, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current(addr)
	if current == nil {
		return nil, sentinel.ErrNotFound
	}
	working := *current
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)
	*current = working
	cp := working
	return &cp, nil
}

// List returns the newest registration of every address ordered by ID.
// A nil status returns all of them.
func (s *InMemory) List(_ context.Context, status *models.Status) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Participant, 0, len(s.history))
	for addr := range s.history {
		current := s.current(addr)
		if status != nil && current.Status != *status {
			continue
		}
		cp := *current
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) current(addr domain.Address) *models.Participant {
	regs := s.history[addr]
	if len(regs) == 0 {
		return nil
	}
	return regs[len(regs)-1]
}
