package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
)

// Service implements the authentication and request-integrity use cases.
// All stateful collaborators enter through ports so the core stays testable
// with in-memory fakes.
type Service struct {
	cfg           Config
	routes        *RouteClassifier
	users         ports.UserRepository
	apiKeys       ports.APIKeyRepository
	sessions      ports.SessionRepository
	magicLinks    ports.MagicLinkRepository
	recovery      ports.RecoveryRepository
	loginAttempts ports.LoginAttemptRepository
	audit         ports.SignatureAuditRepository
	outbox        ports.OutboxRepository
	idempotency   ports.IdempotencyRepository
	replay        ports.ReplayGuard
	revocations   ports.SessionRevocationStore
	lockouts      ports.LockoutStore
	federated     ports.FederatedVerifier
	hasher        ports.PasswordHasher
	signer        ports.TokenSigner
	publisher     ports.EventPublisher
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Routes        *RouteClassifier
	Users         ports.UserRepository
	APIKeys       ports.APIKeyRepository
	Sessions      ports.SessionRepository
	MagicLinks    ports.MagicLinkRepository
	Recovery      ports.RecoveryRepository
	LoginAttempts ports.LoginAttemptRepository
	Audit         ports.SignatureAuditRepository
	Outbox        ports.OutboxRepository
	Idempotency   ports.IdempotencyRepository
	Replay        ports.ReplayGuard
	Revocations   ports.SessionRevocationStore
	Lockouts      ports.LockoutStore
	Federated     ports.FederatedVerifier
	Hasher        ports.PasswordHasher
	Signer        ports.TokenSigner
	Publisher     ports.EventPublisher

	// Now overrides the service clock. Nil means UTC wall time; tests pin it
	// to probe time-window boundaries deterministically.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	routes := deps.Routes
	if routes == nil {
		routes = NewRouteClassifier(nil)
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:           deps.Config,
		routes:        routes,
		users:         deps.Users,
		apiKeys:       deps.APIKeys,
		sessions:      deps.Sessions,
		magicLinks:    deps.MagicLinks,
		recovery:      deps.Recovery,
		loginAttempts: deps.LoginAttempts,
		audit:         deps.Audit,
		outbox:        deps.Outbox,
		idempotency:   deps.Idempotency,
		replay:        deps.Replay,
		revocations:   deps.Revocations,
		lockouts:      deps.Lockouts,
		federated:     deps.Federated,
		hasher:        deps.Hasher,
		signer:        deps.Signer,
		publisher:     deps.Publisher,
		nowFn:         nowFn,
	}
}

// recordAttempt stores a login outcome for audit and the history endpoint.
// Persistence failures are logged, never surfaced.
func (s *Service) recordAttempt(ctx context.Context, userID *uuid.UUID, provider, status, reason, ip, device, userAgent string) {
	if s.loginAttempts == nil {
		return
	}
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:        userID,
		AttemptAt:     s.nowFn(),
		IPAddress:     ip,
		Provider:      provider,
		Status:        status,
		FailureReason: reason,
		DeviceName:    device,
		UserAgent:     userAgent,
	}); err != nil {
		slog.Default().WarnContext(ctx, "failed to persist login attempt",
			"module", "application",
			"layer", "application",
			"operation", "record_login_attempt",
			"outcome", "failure",
			"reason", reason,
			"error", err,
		)
	}
}

// issueSessionTokens creates a session record plus access/refresh token pair.
func (s *Service) issueSessionTokens(ctx context.Context, user domain.User, device, ip, userAgent string) (LoginResponse, error) {
	now := s.nowFn()
	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:         user.UserID,
		DeviceName:     device,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("create session: %w", err)
	}

	claims := ports.AuthClaims{
		UserID:    user.UserID.String(),
		Email:     user.Email,
		Role:      user.RoleName,
		SessionID: session.SessionID.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	access, err := s.signer.IssueAccessToken(claims, s.cfg.TokenTTL)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshClaims := claims
	refreshClaims.ExpiresAt = now.Add(s.cfg.RefreshTTL)
	refresh, err := s.signer.IssueRefreshToken(refreshClaims, s.cfg.RefreshTTL)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    session.SessionID,
		ExpiresIn:    int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// normalizeEmail canonicalizes and validates email format before persistence
// or comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// hashRequest computes a deterministic fingerprint for idempotency conflict
// detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) string {
	raw := make([]byte, bytesLen)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}
