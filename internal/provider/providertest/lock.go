package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/provider"
)

// TestLocking verifies acquire, double-acquire, different-key, foreign-token
// release, release and re-acquire.
func TestLocking(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	key := "ct-lock:" + uuid.NewString()
	other := "ct-lock:" + uuid.NewString()

	// Acquire
	token, err := store.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Double acquire fails
	again, err := store.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Different key succeeds
	otherToken, err := store.AcquireLock(ctx, other, 30*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, otherToken)

	// A foreign token does not release
	require.NoError(t, store.ReleaseLock(ctx, key, uuid.NewString()))
	again, err = store.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Release
	require.NoError(t, store.ReleaseLock(ctx, key, token))

	// Re-acquire after release
	again, err = store.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
}

// TestLockExpiry verifies locks expire after their TTL.
func TestLockExpiry(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	key := "ct-expiring-lock:" + uuid.NewString()

	// Acquire with short TTL
	token, err := store.AcquireLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Immediately re-acquire fails
	again, err := store.AcquireLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Wait for TTL to expire
	time.Sleep(2500 * time.Millisecond)

	// Re-acquire succeeds after expiry
	again, err = store.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
}
