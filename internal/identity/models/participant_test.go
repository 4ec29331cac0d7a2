package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusCanceled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:  true,
		{StatusPending, StatusRejected}:  true,
		{StatusRejected, StatusApproved}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equalf(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNewParticipant(t *testing.T) {
	now := time.Now()

	t.Run("starts pending", func(t *testing.T) {
		p, err := NewParticipant("0xp", domain.RoleProducer, now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, p.Status)
		assert.True(t, p.IsLive())
		assert.False(t, p.IsApproved())
	})

	t.Run("refuses admin role", func(t *testing.T) {
		_, err := NewParticipant("0xp", domain.RoleAdmin, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRole))
	})
}

func TestStatusChanges(t *testing.T) {
	now := time.Now()

	t.Run("admin registration never transitions", func(t *testing.T) {
		admin := NewAdmin("0xadmin", now)
		assert.True(t, dErrors.HasCode(admin.CanSetStatus(StatusRejected), dErrors.CodeInvalidTransition))
	})

	t.Run("cancel only from pending", func(t *testing.T) {
		p, err := NewParticipant("0xp", domain.RoleConsumer, now)
		require.NoError(t, err)
		require.NoError(t, p.CanCancel())
		p.ApplyCancel(now)
		assert.False(t, p.IsLive())
		assert.True(t, dErrors.HasCode(p.CanCancel(), dErrors.CodeInvalidTransition))
	})
}
