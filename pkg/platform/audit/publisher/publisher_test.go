package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechain/pkg/domain"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	addr := domain.Address("producer-1")
	err := pub.Emit(context.Background(), audit.Event{Actor: addr, Action: audit.EventParticipantRegistered})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventParticipantRegistered, events[0].Action)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", events[0].ID.String())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	addr := domain.Address("factory-1")
	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Actor: addr, Action: audit.EventTokenCreated}))
	}

	pub.Close()

	events, err := store.ListByParticipant(context.Background(), addr)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFullDoesNotBlock(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Actor: "r", Action: audit.EventTransferAccepted})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	t.Run("sets missing timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store)

		before := time.Now()
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Actor: "a", Action: audit.EventTokenCreated}))
		after := time.Now()

		events, err := pub.List(context.Background(), "a")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].Timestamp.Before(before))
		assert.False(t, events[0].Timestamp.After(after))
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store)
		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, pub.Emit(context.Background(), audit.Event{Actor: "a", Action: audit.EventTokenCreated, Timestamp: custom}))

		events, err := pub.List(context.Background(), "a")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
	})
}

func TestPublisher_ListMatchesCounterparty(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Actor:        "admin",
		Counterparty: "producer-1",
		Action:       audit.EventParticipantStatusChanged,
		Detail:       "approved",
	}))

	events, err := pub.List(context.Background(), "producer-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "approved", events[0].Detail)
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	t.Run("async", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
		pub.Close()

		var err error
		require.NotPanics(t, func() {
			err = pub.Emit(context.Background(), audit.Event{Actor: "a", Action: audit.EventTransferAccepted})
		})
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("sync", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store)
		pub.Close()

		err := pub.Emit(context.Background(), audit.Event{Actor: "a", Action: audit.EventTransferAccepted})
		assert.ErrorIs(t, err, ErrClosed)
		events, err := store.ListByParticipant(context.Background(), "a")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("close twice", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
		pub.Close()
		assert.NotPanics(t, pub.Close)
	})
}

func TestPublisher_ConcurrentEmitAndClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1024))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				err := pub.Emit(context.Background(), audit.Event{Actor: "a", Action: audit.EventTransferProposed})
				if err != nil && !assert.ErrorIs(t, err, ErrClosed) {
					return
				}
			}
		}()
	}
	pub.Close()
	wg.Wait()
}

func TestPublisher_Recent(t *testing.T) {
	pub := NewPublisher(audit.Fanout{memory.NewInMemoryStore()})
	for _, action := range []audit.Action{audit.EventTokenCreated, audit.EventTransferProposed, audit.EventTransferAccepted} {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Actor: "a", Action: action}))
	}

	events, err := pub.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTransferAccepted, events[0].Action)
	assert.Equal(t, audit.EventTransferProposed, events[1].Action)
}
