package ports

import (
	"context"
	"time"
)

// ReplayGuard records signed-request nonces atomically. CheckAndMark returns
// fresh=true exactly once per (keyID, nonce) pair within the retention window;
// every later call for the same pair returns fresh=false. Check and mark are
// one operation so two concurrent presentations cannot both pass.
type ReplayGuard interface {
	CheckAndMark(ctx context.Context, keyID, nonce string, ttl time.Duration) (fresh bool, err error)
}

// SessionRevocationStore tracks revoked session IDs until their tokens would
// have expired anyway. Entries outlive process restarts.
type SessionRevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// LockoutStore provides shared-state counters for brute-force lockout policies.
// Using a cache-backed store keeps lockout consistent across replicas.
type LockoutStore interface {
	RegisterFailure(ctx context.Context, email string, window, lockFor time.Duration, threshold int) (locked bool, err error)
	ClearFailures(ctx context.Context, email string) error
	IsLocked(ctx context.Context, email string) (bool, error)
}
