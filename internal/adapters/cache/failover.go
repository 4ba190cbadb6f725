package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bubblehq/bubble-backend/internal/ports"
)

// FailoverReplayGuard tries the fast cache first and falls back to the
// durable nonce store when the cache errors. Both stores enforce the same
// once-only semantics, so failover never weakens the replay guarantee; only
// a failure of both stores surfaces as an error, which the verifier treats
// as a rejection.
type FailoverReplayGuard struct {
	primary  ports.ReplayGuard
	fallback ports.NonceRepository
	nowFn    func() time.Time
}

func NewFailoverReplayGuard(primary ports.ReplayGuard, fallback ports.NonceRepository) *FailoverReplayGuard {
	return &FailoverReplayGuard{
		primary:  primary,
		fallback: fallback,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *FailoverReplayGuard) CheckAndMark(ctx context.Context, keyID, nonce string, ttl time.Duration) (bool, error) {
	if g.primary != nil {
		fresh, err := g.primary.CheckAndMark(ctx, keyID, nonce, ttl)
		if err == nil {
			return fresh, nil
		}
		slog.Default().WarnContext(ctx, "replay guard cache unavailable, using durable store",
			"module", "signing",
			"layer", "adapter",
			"operation", "replay_check",
			"outcome", "degraded",
			"error", err,
		)
	}
	if g.fallback == nil {
		return false, errors.New("no replay store available")
	}
	return g.fallback.MarkOnce(ctx, keyID, nonce, g.nowFn())
}
