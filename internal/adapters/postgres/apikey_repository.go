package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

type apiKeyRepository struct {
	db *gorm.DB
}

func (r *apiKeyRepository) GetByKeyID(ctx context.Context, keyID string) (domain.APIKey, error) {
	var rec apiKeyModel
	if err := r.db.WithContext(ctx).Where("key_id = ?", keyID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, err
	}
	return toDomainAPIKey(rec), nil
}
