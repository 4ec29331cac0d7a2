package store

import (
	"context"
	"sort"
	"sync"

	"tracechain/internal/catalog/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
)

// InMemory holds tokens keyed by id. Tokens are immutable once inserted.
type InMemory struct {
	mu     sync.RWMutex
	lastID domain.TokenID
	tokens map[domain.TokenID]*models.Token
}

func NewInMemory() *InMemory {
	return &InMemory{tokens: make(map[domain.TokenID]*models.Token)}
}

// NextID reserves the next token id. Ids of failed mints are not reused.
func (s *InMemory) NextID(_ context.Context) (domain.TokenID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

func (s *InMemory) Insert(_ context.Context, t *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.TokenID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) ListByCreator(_ context.Context, creator domain.Address) ([]*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Token
	for _, t := range s.tokens {
		if t.Creator == creator {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
