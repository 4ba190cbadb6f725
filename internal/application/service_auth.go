package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
)

func (s *Service) Register(ctx context.Context, req RegisterRequest, idempotencyKey string) (RegisterResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return RegisterResponse{}, err
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = s.cfg.DefaultRole
	}

	if idempotencyKey != "" {
		requestHash := hashRequest(req)
		if existing, getErr := s.idempotency.Get(ctx, idempotencyKey); getErr == nil && existing != nil {
			if existing.RequestHash != requestHash {
				return RegisterResponse{}, domain.ErrIdempotencyConflict
			}
			if existing.Status == "COMPLETED" {
				var resp RegisterResponse
				if json.Unmarshal(existing.ResponseBody, &resp) == nil {
					return resp, nil
				}
			}
		}
		if err := s.idempotency.Reserve(ctx, idempotencyKey, requestHash, s.nowFn().Add(7*24*time.Hour)); err != nil {
			return RegisterResponse{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
		}
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"email":         email,
		"registered_at": now,
	})
	user, err := s.users.CreateWithOutboxTx(ctx, ports.CreateUserTxParams{
		Email:           email,
		PasswordHash:    passwordHash,
		RoleName:        role,
		EmailVerified:   false,
		IdempotencyKey:  idempotencyKey,
		RegisteredAtUTC: now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "user.registered",
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		return RegisterResponse{}, err
	}

	if idempotencyKey != "" {
		responseBody, _ := json.Marshal(RegisterResponse{UserID: user.UserID})
		_ = s.idempotency.Complete(ctx, idempotencyKey, 201, responseBody, s.nowFn())
	}
	return RegisterResponse{UserID: user.UserID}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}

	if locked, lockErr := s.lockouts.IsLocked(ctx, email); lockErr == nil && locked {
		return LoginResponse{}, domain.ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.recordAttempt(ctx, nil, "password", "FAILED", "USER_NOT_FOUND", req.IPAddress, req.DeviceName, req.UserAgent)
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive || user.DeletedAt != nil {
		s.recordAttempt(ctx, &user.UserID, "password", "FAILED", "ACCOUNT_INACTIVE", req.IPAddress, req.DeviceName, req.UserAgent)
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordAttempt(ctx, &user.UserID, "password", "FAILED", "INVALID_PASSWORD", req.IPAddress, req.DeviceName, req.UserAgent)
		if locked, _ := s.lockouts.RegisterFailure(ctx, email, s.cfg.LockoutWindow, s.cfg.LockoutDuration, s.cfg.FailedLoginThreshold); locked {
			return LoginResponse{}, domain.ErrAccountLocked
		}
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	_ = s.lockouts.ClearFailures(ctx, email)

	resp, err := s.issueSessionTokens(ctx, user, req.DeviceName, req.IPAddress, req.UserAgent)
	if err != nil {
		return LoginResponse{}, err
	}

	now := s.nowFn()
	s.recordAttempt(ctx, &user.UserID, "password", "SUCCESS", "", req.IPAddress, req.DeviceName, req.UserAgent)
	_ = s.users.RecordLogin(ctx, user.UserID, now)
	return resp, nil
}

// Refresh exchanges a valid refresh token for a new access/refresh pair after
// re-checking session state: a revoked or expired session cannot be extended.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResponse, error) {
	claims, err := s.signer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return RefreshResponse{}, mapTokenError(err)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return RefreshResponse{}, domain.ErrTokenInvalid
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return RefreshResponse{}, domain.ErrUnauthorized
	}
	now := s.nowFn()
	if session.RevokedAt != nil {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(now) || session.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(now) {
		return RefreshResponse{}, domain.ErrSessionExpired
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}
	_ = s.sessions.TouchActivity(ctx, sessionID, now)

	next := ports.AuthClaims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	access, err := s.signer.IssueAccessToken(next, s.cfg.TokenTTL)
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshClaims := next
	refreshClaims.ExpiresAt = now.Add(s.cfg.RefreshTTL)
	refresh, err := s.signer.IssueRefreshToken(refreshClaims, s.cfg.RefreshTTL)
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return RefreshResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// ValidateToken verifies an access token and cross-checks the session it is
// bound to. The revocation denylist is consulted first so a logout takes
// effect before the token's natural expiry.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	if strings.TrimSpace(token) == "" {
		return ports.AuthClaims{}, domain.ErrTokenInvalid
	}
	claims, err := s.signer.VerifyAccessToken(token)
	if err != nil {
		return ports.AuthClaims{}, mapTokenError(err)
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrTokenInvalid
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if session.UserID.String() != claims.UserID {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	now := s.nowFn()
	if session.RevokedAt != nil {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(now) || session.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(now) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	return claims, nil
}

func (s *Service) LogoutCurrentSession(ctx context.Context, claims ports.AuthClaims) error {
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return domain.ErrTokenInvalid
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, sessionID, now); err != nil {
		return err
	}
	return s.denylistSession(ctx, claims.SessionID, claims.ExpiresAt)
}

func (s *Service) RevokeSessionByID(ctx context.Context, claims ports.AuthClaims, sessionID uuid.UUID) error {
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.ErrNotFound
	}
	if target.UserID.String() != claims.UserID {
		return domain.ErrForbidden
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, sessionID, now); err != nil {
		return err
	}
	return s.denylistSession(ctx, sessionID.String(), now.Add(s.cfg.TokenTTL))
}

func (s *Service) LogoutAllSessions(ctx context.Context, claims ports.AuthClaims) error {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return domain.ErrTokenInvalid
	}
	now := s.nowFn()
	sessions, err := s.sessions.ListByUser(ctx, userID, 200, 0)
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAllByUser(ctx, userID, now); err != nil {
		return err
	}
	for _, it := range sessions {
		if it.RevokedAt == nil {
			_ = s.denylistSession(ctx, it.SessionID.String(), now.Add(s.cfg.TokenTTL))
		}
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context, claims ports.AuthClaims) ([]SessionItem, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	sessions, err := s.sessions.ListByUser(ctx, userID, 100, 0)
	if err != nil {
		return nil, err
	}
	currentID, _ := uuid.Parse(claims.SessionID)
	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, currentID))
	}
	return result, nil
}

func (s *Service) ListLoginHistory(ctx context.Context, claims ports.AuthClaims, q LoginHistoryQuery) ([]LoginHistoryItem, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	var since *time.Time
	if q.Days > 0 {
		t := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		since = &t
	}

	attempts, err := s.loginAttempts.ListByUser(ctx, userID, q.Limit, offset, since, strings.ToUpper(strings.TrimSpace(q.Status)))
	if err != nil {
		return nil, err
	}
	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:            attempt.ID,
			Timestamp:     attempt.AttemptAt,
			Status:        attempt.Status,
			Provider:      attempt.Provider,
			FailureReason: attempt.FailureReason,
			IPAddress:     attempt.IPAddress,
			DeviceName:    attempt.DeviceName,
		})
	}
	return result, nil
}

func (s *Service) PublicJWKs() []map[string]string {
	return s.signer.PublicJWKs()
}

// denylistSession keeps a revocation marker alive for as long as any token
// bound to the session could still verify.
func (s *Service) denylistSession(ctx context.Context, sessionID string, tokenExpiry time.Time) error {
	ttl := time.Until(tokenExpiry)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return s.revocations.Revoke(ctx, sessionID, ttl)
}

// mapTokenError folds signer-level failures into the two sentinel outcomes
// callers distinguish: expired versus everything else.
func mapTokenError(err error) error {
	if errors.Is(err, domain.ErrTokenExpired) {
		return domain.ErrTokenExpired
	}
	return domain.ErrTokenInvalid
}
