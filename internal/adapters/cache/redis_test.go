package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisReplayGuardMarksOnce(t *testing.T) {
	client, mr := newTestClient(t)
	guard := NewRedisReplayGuard(client)
	ctx := context.Background()

	fresh, err := guard.CheckAndMark(ctx, "key-1", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, fresh, "first presentation must be fresh")

	fresh, err = guard.CheckAndMark(ctx, "key-1", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	require.False(t, fresh, "second presentation must be a replay")

	// The same nonce under a different key is independent.
	fresh, err = guard.CheckAndMark(ctx, "key-2", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)

	// Entries expire with the window, after which the nonce is reusable.
	mr.FastForward(6 * time.Minute)
	fresh, err = guard.CheckAndMark(ctx, "key-1", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, fresh, "expired nonce must be accepted again")
}

func TestRedisReplayGuardErrorsWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	guard := NewRedisReplayGuard(client)

	mr.Close()
	_, err := guard.CheckAndMark(context.Background(), "key-1", "nonce-1", time.Minute)
	require.Error(t, err, "an unreachable store must error, never silently accept")
}

func TestRedisSessionRevocationStore(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewRedisSessionRevocationStore(client)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "session-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "session-1", 2*time.Minute))
	revoked, err = store.IsRevoked(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// The marker lapses once the tokens it guards would have expired.
	mr.FastForward(3 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "session-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisLockoutStoreThreshold(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewRedisLockoutStore(client)
	ctx := context.Background()

	const email = "user@example.com"
	window := 15 * time.Minute
	lockFor := 30 * time.Minute

	for i := 0; i < 2; i++ {
		locked, err := store.RegisterFailure(ctx, email, window, lockFor, 3)
		require.NoError(t, err)
		require.False(t, locked, "failure %d must not lock yet", i+1)
	}

	locked, err := store.RegisterFailure(ctx, email, window, lockFor, 3)
	require.NoError(t, err)
	require.True(t, locked, "third failure must lock")

	isLocked, err := store.IsLocked(ctx, email)
	require.NoError(t, err)
	require.True(t, isLocked)

	// The lock outlives the failure counter window.
	mr.FastForward(lockFor + time.Minute)
	isLocked, err = store.IsLocked(ctx, email)
	require.NoError(t, err)
	require.False(t, isLocked, "lock must lapse after the lockout duration")
}

func TestRedisLockoutStoreClearFailures(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewRedisLockoutStore(client)
	ctx := context.Background()

	const email = "user@example.com"
	locked, err := store.RegisterFailure(ctx, email, time.Minute, time.Minute, 1)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, store.ClearFailures(ctx, email))
	isLocked, err := store.IsLocked(ctx, email)
	require.NoError(t, err)
	require.False(t, isLocked, "a successful login clears the lock")
}

type recordingNonces struct {
	calls int
	fresh bool
	err   error
}

func (r *recordingNonces) MarkOnce(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	r.calls++
	return r.fresh, r.err
}

func TestFailoverReplayGuardUsesPrimaryFirst(t *testing.T) {
	client, _ := newTestClient(t)
	fallback := &recordingNonces{fresh: true}
	guard := NewFailoverReplayGuard(NewRedisReplayGuard(client), fallback)
	ctx := context.Background()

	fresh, err := guard.CheckAndMark(ctx, "key-1", "nonce-1", time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Zero(t, fallback.calls, "fallback must not be consulted while the cache is healthy")
}

func TestFailoverReplayGuardFallsBackWhenCacheDown(t *testing.T) {
	client, mr := newTestClient(t)
	fallback := &recordingNonces{fresh: true}
	guard := NewFailoverReplayGuard(NewRedisReplayGuard(client), fallback)
	ctx := context.Background()

	mr.Close()
	fresh, err := guard.CheckAndMark(ctx, "key-1", "nonce-1", time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 1, fallback.calls)

	// A replay detected by the durable store is still a replay.
	fallback.fresh = false
	fresh, err = guard.CheckAndMark(ctx, "key-1", "nonce-1", time.Minute)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestFailoverReplayGuardFailsClosedWhenBothDown(t *testing.T) {
	client, mr := newTestClient(t)
	fallback := &recordingNonces{err: errors.New("database down")}
	guard := NewFailoverReplayGuard(NewRedisReplayGuard(client), fallback)

	mr.Close()
	_, err := guard.CheckAndMark(context.Background(), "key-1", "nonce-1", time.Minute)
	require.Error(t, err, "both stores failing must surface an error")
}
