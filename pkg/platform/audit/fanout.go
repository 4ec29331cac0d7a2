package audit

import (
	"context"
	"errors"

	"tracechain/pkg/domain"
)

// Fanout appends every event to each store in order and joins their errors.
// The first store that implements a query interface answers it.
type Fanout []Store

func (f Fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) ListByParticipant(ctx context.Context, addr domain.Address) ([]Event, error) {
	for _, s := range f {
		if l, ok := s.(Lister); ok {
			return l.ListByParticipant(ctx, addr)
		}
	}
	return nil, nil
}

func (f Fanout) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	for _, s := range f {
		if l, ok := s.(RecentLister); ok {
			return l.ListRecent(ctx, limit)
		}
	}
	return nil, nil
}
