package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:        row.UserID,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		RoleName:      row.RoleName,
		EmailVerified: row.EmailVerified,
		IsActive:      row.IsActive,
		LastLoginAt:   row.LastLoginAt,
		LoginCount:    row.LoginCount,
		DeletedAt:     row.DeletedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toDomainAPIKey(row apiKeyModel) domain.APIKey {
	return domain.APIKey{
		ID:             row.ID,
		KeyID:          row.KeyID,
		Name:           row.Name,
		SecretMaterial: row.SecretMaterial,
		Disabled:       row.Disabled,
		CreatedAt:      row.CreatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Session{
		SessionID:      row.SessionID,
		UserID:         row.UserID,
		DeviceName:     row.DeviceName,
		IPAddress:      ip,
		UserAgent:      row.UserAgent,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
		ExpiresAt:      row.ExpiresAt,
		RevokedAt:      row.RevokedAt,
	}
}

func toDomainMagicLink(row magicLinkModel) domain.MagicLink {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.MagicLink{
		LinkID:    row.LinkID,
		UserID:    row.UserID,
		Email:     row.Email,
		TokenHash: row.TokenHash,
		IPAddress: ip,
		UserAgent: row.UserAgent,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
		UsedAt:    row.UsedAt,
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.LoginAttempt{
		ID:            row.ID,
		UserID:        row.UserID,
		AttemptAt:     row.AttemptAt,
		IPAddress:     ip,
		Provider:      row.Provider,
		Status:        row.Status,
		FailureReason: row.FailureReason,
		DeviceName:    row.DeviceName,
		UserAgent:     row.UserAgent,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
