package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
	"github.com/bubblehq/bubble-backend/internal/signing"
)

// Config carries tunable policy for the application service.
type Config struct {
	DefaultRole        string
	TokenTTL           time.Duration
	RefreshTTL         time.Duration
	SessionTTL         time.Duration
	SessionAbsoluteTTL time.Duration

	// SignatureWindow bounds the accepted clock skew for signed requests and
	// doubles as the nonce retention period.
	SignatureWindow time.Duration

	MagicLinkTTL time.Duration
	// MagicLinkStrictBinding rejects magic-link redemption from a different
	// IP/user agent than the request origin. When false, mismatches are
	// logged but allowed.
	MagicLinkStrictBinding bool

	FailedLoginThreshold int
	LockoutWindow        time.Duration
	LockoutDuration      time.Duration
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type RegisterResponse struct {
	UserID uuid.UUID `json:"user_id"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    uuid.UUID `json:"session_id"`
	ExpiresIn    int64     `json:"expires_in"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type SessionItem struct {
	SessionID      uuid.UUID `json:"session_id"`
	DeviceName     string    `json:"device_name"`
	IPAddress      string    `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

type LoginHistoryQuery struct {
	Page   int
	Limit  int
	Days   int
	Status string
}

type LoginHistoryItem struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	Provider      string    `json:"provider,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address"`
	DeviceName    string    `json:"device_name"`
}

type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type MagicLinkRequest struct {
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

type MagicLinkVerifyRequest struct {
	Token      string `json:"token"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type FederatedLoginRequest struct {
	Provider   string `json:"provider"`
	IDToken    string `json:"id_token"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

// SignedRequestInput bundles the signed fields plus the caller-provided
// signature for one verification attempt.
type SignedRequestInput struct {
	Request   signing.Request
	Signature string
	ClientIP  string
}

// AuthRequest is everything the authentication facade needs to decide whether
// one inbound request may proceed.
type AuthRequest struct {
	Signed      SignedRequestInput
	BearerToken string
}

// AuthResult reports which checks ran and the identities they established.
type AuthResult struct {
	Class  RouteClass
	APIKey *domain.APIKey
	Claims *ports.AuthClaims
}

func toSessionItem(s domain.Session, currentID uuid.UUID) SessionItem {
	return SessionItem{
		SessionID:      s.SessionID,
		DeviceName:     s.DeviceName,
		IPAddress:      s.IPAddress,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		Current:        s.SessionID == currentID,
	}
}
