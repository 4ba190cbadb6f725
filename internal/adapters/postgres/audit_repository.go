package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) Insert(ctx context.Context, event domain.SignatureAuditEvent) error {
	rec := hmacEventModel{
		APIKeyID:      event.APIKeyID,
		Path:          event.Path,
		Method:        event.Method,
		OccurredAt:    event.OccurredAt,
		ClientIP:      nullableString(event.ClientAddress),
		Success:       event.Success,
		FailureReason: event.FailureReason,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}
