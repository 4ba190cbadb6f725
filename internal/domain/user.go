package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical end-user identity aggregate.
// It keeps only auth-relevant state so authorization/session flows stay service-owned.
type User struct {
	UserID        uuid.UUID
	Email         string
	PasswordHash  string
	RoleName      string
	EmailVerified bool
	IsActive      bool
	LastLoginAt   *time.Time
	LoginCount    int64
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// APIKey identifies a calling client application (tenant).
// SecretMaterial is opaque shared-secret material and must never be logged.
type APIKey struct {
	ID             uuid.UUID
	KeyID          string
	Name           string
	SecretMaterial string
	Disabled       bool
	CreatedAt      time.Time
}

// Session models a login session issued per device.
// We persist this separately to support per-device revocation and session history.
type Session struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	DeviceName     string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}

// MagicLink is a single-use sign-in token delivered out-of-band.
// Only the SHA-256 hash of the raw token is ever stored.
type MagicLink struct {
	LinkID    uuid.UUID
	UserID    uuid.UUID
	Email     string
	TokenHash string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// LoginAttempt records authentication outcomes for audit and lockout controls.
type LoginAttempt struct {
	ID            int64
	UserID        *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	Provider      string
	Status        string
	FailureReason string
	DeviceName    string
	UserAgent     string
}

// SignatureAuditEvent is the per-attempt audit record the signed-request
// verifier writes. Writes are best-effort and never block the auth decision.
type SignatureAuditEvent struct {
	APIKeyID      *uuid.UUID
	Path          string
	Method        string
	OccurredAt    time.Time
	ClientAddress string
	Success       bool
	FailureReason string
}
