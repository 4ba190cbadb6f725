package ports

import (
	"context"
	"time"
)

// AuthClaims is the decoded, validated payload of a first-party access token.
type AuthClaims struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
}

// TokenSigner abstracts JWT issuing/verification behind the domain's needs.
// Access and refresh tokens are issued as a pair tied to one session.
type TokenSigner interface {
	IssueAccessToken(claims AuthClaims, ttl time.Duration) (string, error)
	IssueRefreshToken(claims AuthClaims, ttl time.Duration) (string, error)
	VerifyAccessToken(token string) (AuthClaims, error)
	VerifyRefreshToken(token string) (AuthClaims, error)
	// PublicJWKs exposes verification keys for the JWKS endpoint and the
	// internal gRPC surface.
	PublicJWKs() []map[string]string
}

// PasswordHasher wraps the password hashing scheme.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// FederatedIdentity is the provider-asserted identity extracted from a
// verified external ID token.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// FederatedVerifier validates ID tokens minted by an external identity
// provider against that provider's published signing keys.
// Errors: domain.ErrSigningKeyUnknown, domain.ErrProviderUnavailable,
// domain.ErrFederatedTokenInvalid.
type FederatedVerifier interface {
	Verify(ctx context.Context, provider, rawIDToken string) (FederatedIdentity, error)
}
