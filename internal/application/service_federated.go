package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
)

// FederatedLogin verifies an external provider's ID token and signs the user
// in, provisioning an account on first contact. The provider decides
// identity; this service only decides account state.
func (s *Service) FederatedLogin(ctx context.Context, req FederatedLoginRequest) (LoginResponse, error) {
	if s.federated == nil {
		return LoginResponse{}, fmt.Errorf("%w: no federated providers configured", domain.ErrInvalidInput)
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" || strings.TrimSpace(req.IDToken) == "" {
		return LoginResponse{}, fmt.Errorf("%w: provider and id token are required", domain.ErrInvalidInput)
	}

	identity, err := s.federated.Verify(ctx, provider, req.IDToken)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProviderUnavailable),
			errors.Is(err, domain.ErrSigningKeyUnknown),
			errors.Is(err, domain.ErrFederatedTokenInvalid):
			s.recordAttempt(ctx, nil, provider, "FAILED", federatedFailureReason(err), req.IPAddress, req.DeviceName, req.UserAgent)
			return LoginResponse{}, err
		}
		return LoginResponse{}, domain.ErrFederatedTokenInvalid
	}

	email, err := normalizeEmail(identity.Email)
	if err != nil {
		return LoginResponse{}, domain.ErrFederatedTokenInvalid
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		user, err = s.provisionFederatedUser(ctx, email, identity)
	}
	if err != nil {
		return LoginResponse{}, err
	}
	if !user.IsActive || user.DeletedAt != nil {
		s.recordAttempt(ctx, &user.UserID, provider, "FAILED", "ACCOUNT_INACTIVE", req.IPAddress, req.DeviceName, req.UserAgent)
		return LoginResponse{}, domain.ErrForbidden
	}

	resp, err := s.issueSessionTokens(ctx, user, req.DeviceName, req.IPAddress, req.UserAgent)
	if err != nil {
		return LoginResponse{}, err
	}

	now := s.nowFn()
	s.recordAttempt(ctx, &user.UserID, provider, "SUCCESS", "", req.IPAddress, req.DeviceName, req.UserAgent)
	_ = s.users.RecordLogin(ctx, user.UserID, now)
	return resp, nil
}

// provisionFederatedUser creates a passwordless account for a first-time
// federated sign-in. Email verification is inherited from the provider claim.
func (s *Service) provisionFederatedUser(ctx context.Context, email string, identity ports.FederatedIdentity) (domain.User, error) {
	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"email":         email,
		"provider":      identity.Provider,
		"registered_at": now,
	})
	return s.users.CreateWithOutboxTx(ctx, ports.CreateUserTxParams{
		Email:           email,
		PasswordHash:    "",
		RoleName:        s.cfg.DefaultRole,
		EmailVerified:   identity.EmailVerified,
		RegisteredAtUTC: now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "user.registered",
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	})
}

func federatedFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "PROVIDER_UNAVAILABLE"
	case errors.Is(err, domain.ErrSigningKeyUnknown):
		return "UNKNOWN_KEY"
	default:
		return "INVALID_TOKEN"
	}
}
