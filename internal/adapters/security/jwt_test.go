package security

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
)

func newTestSigner(t *testing.T) *JWTSigner {
	t.Helper()
	signer, err := NewEphemeralJWTSigner("test-key-1", "bubble-test")
	require.NoError(t, err)
	return signer
}

func testClaims() ports.AuthClaims {
	now := time.Now().UTC()
	return ports.AuthClaims{
		UserID:    "3f0f8a8e-92f4-4c2e-9b6f-0a1b2c3d4e5f",
		Email:     "user@example.com",
		Role:      "USER",
		SessionID: "7f6e5d4c-3b2a-1908-8f7e-6d5c4b3a2919",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	claims := testClaims()

	token, err := signer.IssueAccessToken(claims, time.Hour)
	require.NoError(t, err)

	parsed, err := signer.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, parsed.UserID)
	require.Equal(t, claims.Email, parsed.Email)
	require.Equal(t, claims.Role, parsed.Role)
	require.Equal(t, claims.SessionID, parsed.SessionID)
	require.Equal(t, "test-key-1", parsed.KeyID)
}

func TestRefreshTokenCannotActAsAccessToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	claims := testClaims()

	refresh, err := signer.IssueRefreshToken(claims, 24*time.Hour)
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(refresh)
	require.ErrorIs(t, err, domain.ErrTokenInvalid, "refresh token must not verify as access")

	access, err := signer.IssueAccessToken(claims, time.Hour)
	require.NoError(t, err)
	_, err = signer.VerifyRefreshToken(access)
	require.ErrorIs(t, err, domain.ErrTokenInvalid, "access token must not verify as refresh")
}

func TestExpiredTokenMapsToSentinel(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	claims := testClaims()

	// Issue a token whose expiry is already past the verification leeway.
	token, err := signer.IssueAccessToken(claims, -2*time.Minute)
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(token)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenFromDifferentKeypairRejected(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	other, err := NewEphemeralJWTSigner("test-key-1", "bubble-test")
	require.NoError(t, err)

	token, err := other.IssueAccessToken(testClaims(), time.Hour)
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(token)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestWrongIssuerRejected(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)

	otherIssuer := &JWTSigner{
		kid:        signer.kid,
		issuer:     "someone-else",
		privateKey: signer.privateKey,
		publicKey:  signer.publicKey,
	}
	token, err := otherIssuer.IssueAccessToken(testClaims(), time.Hour)
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(token)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestGarbageTokenRejected(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := signer.VerifyAccessToken(raw)
		if !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", raw, err)
		}
	}
}

func TestPublicJWKsShape(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	jwks := signer.PublicJWKs()
	require.Len(t, jwks, 1)

	key := jwks[0]
	require.Equal(t, "test-key-1", key["kid"])
	require.Equal(t, "RSA", key["kty"])
	require.Equal(t, "RS256", key["alg"])
	require.Equal(t, "sig", key["use"])
	require.NotEmpty(t, key["n"])
	require.NotEmpty(t, key["e"])
}
