package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

// CreateUserTxParams captures atomic user-creation inputs.
// It includes outbox/idempotency metadata so registration can be durable and replay-safe.
type CreateUserTxParams struct {
	Email           string
	PasswordHash    string
	RoleName        string
	EmailVerified   bool
	IdempotencyKey  string
	RegisteredAtUTC time.Time
}

// UserRepository defines persistence operations for user identities.
// The transactional create method exists to enforce user+outbox consistency.
type UserRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateUserTxParams, outboxEvent OutboxEvent) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	// RecordLogin bumps last_login_at/login_count bookkeeping.
	RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, at time.Time) error
}

// APIKeyRepository resolves client credentials for signed-request
// verification. Records are created out-of-band by admin tooling; the core
// only reads them. Disabled records are returned so the verifier can
// distinguish "unknown" (401) from "known but disabled" (403).
type APIKeyRepository interface {
	GetByKeyID(ctx context.Context, keyID string) (domain.APIKey, error)
}

// SessionCreateParams captures metadata required to create a session record.
// Device and network fields are stored for auditability and risk analysis.
type SessionCreateParams struct {
	UserID         uuid.UUID
	DeviceName     string
	IPAddress      string
	UserAgent      string
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// SessionRepository manages persistent session lifecycle.
// It is separate from token parsing so revocation and activity tracking remain source-of-truth driven.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error)
	TouchActivity(ctx context.Context, sessionID uuid.UUID, touchedAt time.Time) error
	RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error
}

// MagicLinkRepository owns single-use sign-in token lifecycle.
// Consume reads and marks the row used in one transaction, so two concurrent
// presentations of the same raw token cannot both succeed.
type MagicLinkRepository interface {
	Create(ctx context.Context, link domain.MagicLink) error
	// Consume returns the link on first valid presentation and marks it used.
	// Errors: domain.ErrNotFound (no such hash), domain.ErrTokenExpired,
	// domain.ErrTokenConsumed.
	Consume(ctx context.Context, tokenHash string, usedAt time.Time) (domain.MagicLink, error)
}

// RecoveryRepository owns password-reset token lifecycle.
// Separate create/consume methods keep one-time-token invariants explicit.
type RecoveryRepository interface {
	CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, usedAt time.Time) (uuid.UUID, error)
}

// NonceRepository is the durable fallback replay store used when the fast
// cache is unavailable. MarkOnce reports true when the (keyID, nonce) pair was
// fresh; a uniqueness-constraint conflict reports false.
type NonceRepository interface {
	MarkOnce(ctx context.Context, keyID, nonce string, seenAt time.Time) (bool, error)
}

// LoginAttemptRepository stores login outcomes used by lockout and history endpoints.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int, since *time.Time, status string) ([]domain.LoginAttempt, error)
}

// SignatureAuditRepository persists one row per signed-request verification
// attempt. Implementations must be safe to call best-effort; callers swallow
// errors by design.
type SignatureAuditRepository interface {
	Insert(ctx context.Context, event domain.SignatureAuditEvent) error
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
// Storing response metadata lets handlers return stable replay responses.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotencyRepository enforces idempotent mutation semantics.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
