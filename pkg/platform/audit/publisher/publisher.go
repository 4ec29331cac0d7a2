package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracechain/pkg/domain"
	audit "tracechain/pkg/platform/audit"
)

var (
	// ErrBufferFull is returned by async publishers when the inbox is saturated.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("audit publisher closed")
)

// Publisher captures structured audit events. By default Emit writes through
// to the store; WithAsyncBuffer switches to a buffered channel drained by a
// background goroutine.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	// mu guards closed and the inbox send; Close takes it exclusively so no
	// Emit can send on a closed channel.
	mu     sync.RWMutex
	closed bool
	inbox  chan audit.Event
	wg     sync.WaitGroup
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Missing ID and Timestamp are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns events involving addr when the store supports queries.
func (p *Publisher) List(ctx context.Context, addr domain.Address) ([]audit.Event, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByParticipant(ctx, addr)
}

// Recent returns the newest events first, at most limit of them.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	lister, ok := p.store.(audit.RecentLister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListRecent(ctx, limit)
}

// Close stops accepting events and drains the buffer. Later Emit calls
// return ErrClosed. Close is safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Warn("failed to persist audit event",
				"action", string(event.Action),
				"event_id", event.ID.String(),
				"error", err,
			)
		}
	}
}
