package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

// RequestPasswordReset issues a one-hour reset token. The response never
// reveals whether the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil
	}

	rawToken := randomHex(32)
	now := s.nowFn()
	if err := s.recovery.CreatePasswordResetToken(ctx, user.UserID, hashToken(rawToken), now, now.Add(time.Hour)); err != nil {
		return err
	}

	if s.publisher != nil {
		payload := []byte(fmt.Sprintf(`{"email":%q,"token":%q}`, normalized, rawToken))
		_ = s.publisher.Publish(ctx, "notification.password_reset", normalized, payload)
	}
	return nil
}

// ResetPassword consumes a reset token and installs the new password hash.
// All of the user's sessions stay valid; the original product behaves the
// same way.
func (s *Service) ResetPassword(ctx context.Context, req PasswordResetRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	userID, err := s.recovery.ConsumePasswordResetToken(ctx, hashToken(req.Token), s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTokenConsumed) || errors.Is(err, domain.ErrTokenExpired) {
			return domain.ErrTokenInvalid
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, passwordHash, s.nowFn())
}
