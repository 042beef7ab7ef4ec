package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoginGuard_LocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	guard := NewMemoryLoginGuard()
	guard.now = func() time.Time { return now }

	for i := 0; i < MaxLoginAttempts-1; i++ {
		require.NoError(t, guard.Fail(ctx, "Buyer@Example.com"))
	}
	locked, err := guard.Locked(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, guard.Fail(ctx, "buyer@example.com"))
	locked, _ = guard.Locked(ctx, " buyer@example.com ")
	assert.True(t, locked)

	other, _ := guard.Locked(ctx, "someone@example.com")
	assert.False(t, other)

	now = now.Add(LoginWindow + time.Second)
	locked, _ = guard.Locked(ctx, "buyer@example.com")
	assert.False(t, locked)
}

func TestMemoryLoginGuard_ResetClearsFailures(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLoginGuard()
	for i := 0; i < MaxLoginAttempts; i++ {
		require.NoError(t, guard.Fail(ctx, "shop@example.com"))
	}
	require.NoError(t, guard.Reset(ctx, "shop@example.com"))

	locked, err := guard.Locked(ctx, "shop@example.com")
	require.NoError(t, err)
	assert.False(t, locked)
}
