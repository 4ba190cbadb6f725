package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked       = errors.New("account locked")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrSessionExpired      = errors.New("session expired")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// Bearer-token rejections. Expired and malformed are distinct sentinels so
	// callers can tell a stale client from a broken or forged one.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenConsumed covers one-time tokens (magic links, reset tokens)
	// presented after their first successful use.
	ErrTokenConsumed = errors.New("token already consumed")

	// Signed-request rejections. Each stage of the verifier has its own
	// sentinel so replay attempts are distinguishable from signature bugs.
	ErrSignatureHeaderMissing = errors.New("missing signature header")
	ErrSignatureTimestamp     = errors.New("timestamp outside allowed window")
	ErrAPIKeyUnknown          = errors.New("unknown api key")
	ErrAPIKeyDisabled         = errors.New("api key disabled")
	ErrSignatureReplay        = errors.New("nonce replay detected")
	ErrSignatureMismatch      = errors.New("signature verification failed")
	// ErrSignatureInternal is the fail-closed result for store or crypto
	// failures inside the verifier. It must never degrade to an accept.
	ErrSignatureInternal = errors.New("signature verification error")

	// Federated identity rejections.
	ErrSigningKeyUnknown     = errors.New("unknown signing key")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
	ErrFederatedTokenInvalid = errors.New("federated token invalid")
)
