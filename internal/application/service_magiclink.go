package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

// RequestMagicLink mints a single-use sign-in token for an existing account.
// Only the SHA-256 hash of the token is persisted; the raw token travels to
// the notification pipeline and is gone once delivered. The call reports
// success whether or not the account exists, so the endpoint cannot be used
// to probe for registered emails.
func (s *Service) RequestMagicLink(ctx context.Context, req MagicLinkRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive || user.DeletedAt != nil {
		return nil
	}

	rawToken := randomHex(32)
	now := s.nowFn()
	link := domain.MagicLink{
		LinkID:    uuid.New(),
		UserID:    user.UserID,
		Email:     email,
		TokenHash: hashToken(rawToken),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.MagicLinkTTL),
	}
	if err := s.magicLinks.Create(ctx, link); err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}

	if s.publisher != nil {
		payload, _ := json.Marshal(map[string]any{
			"email":        email,
			"token":        rawToken,
			"redirect_uri": strings.TrimSpace(req.RedirectURI),
			"expires_at":   link.ExpiresAt,
		})
		if err := s.publisher.Publish(ctx, "notification.magic_link", email, payload); err != nil {
			slog.Default().WarnContext(ctx, "magic link delivery failed",
				"module", "magiclink",
				"layer", "application",
				"operation", "request_magic_link",
				"outcome", "failure",
				"error", err,
			)
		}
	}
	return nil
}

// VerifyMagicLink redeems a token. Consumption is atomic in the repository,
// so a token presented twice concurrently succeeds at most once.
func (s *Service) VerifyMagicLink(ctx context.Context, req MagicLinkVerifyRequest) (LoginResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return LoginResponse{}, fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}

	link, err := s.magicLinks.Consume(ctx, hashToken(token), s.nowFn())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenConsumed):
			return LoginResponse{}, domain.ErrTokenConsumed
		case errors.Is(err, domain.ErrTokenExpired):
			return LoginResponse{}, domain.ErrTokenExpired
		case errors.Is(err, domain.ErrNotFound):
			return LoginResponse{}, domain.ErrTokenInvalid
		}
		return LoginResponse{}, err
	}

	if mismatch := bindingMismatch(link, req); mismatch != "" {
		if s.cfg.MagicLinkStrictBinding {
			s.recordAttempt(ctx, &link.UserID, "magic_link", "FAILED", mismatch, req.IPAddress, req.DeviceName, req.UserAgent)
			return LoginResponse{}, domain.ErrTokenInvalid
		}
		slog.Default().WarnContext(ctx, "magic link redeemed from a different client",
			"module", "magiclink",
			"layer", "application",
			"operation", "verify_magic_link",
			"outcome", "warning",
			"mismatch", mismatch,
		)
	}

	user, err := s.users.GetByID(ctx, link.UserID)
	if err != nil {
		return LoginResponse{}, domain.ErrTokenInvalid
	}
	if !user.IsActive || user.DeletedAt != nil {
		return LoginResponse{}, domain.ErrTokenInvalid
	}

	resp, err := s.issueSessionTokens(ctx, user, req.DeviceName, req.IPAddress, req.UserAgent)
	if err != nil {
		return LoginResponse{}, err
	}

	now := s.nowFn()
	s.recordAttempt(ctx, &user.UserID, "magic_link", "SUCCESS", "", req.IPAddress, req.DeviceName, req.UserAgent)
	_ = s.users.RecordLogin(ctx, user.UserID, now)
	return resp, nil
}

func bindingMismatch(link domain.MagicLink, req MagicLinkVerifyRequest) string {
	if link.IPAddress != "" && req.IPAddress != "" && link.IPAddress != req.IPAddress {
		return "IP_MISMATCH"
	}
	if link.UserAgent != "" && req.UserAgent != "" && link.UserAgent != req.UserAgent {
		return "USER_AGENT_MISMATCH"
	}
	return ""
}
