package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bubblehq/bubble-backend/internal/domain"
)

type magicLinkRepository struct {
	db *gorm.DB
}

func (r *magicLinkRepository) Create(ctx context.Context, link domain.MagicLink) error {
	rec := magicLinkModel{
		LinkID:    link.LinkID,
		UserID:    link.UserID,
		Email:     link.Email,
		TokenHash: link.TokenHash,
		IPAddress: nullableString(link.IPAddress),
		UserAgent: link.UserAgent,
		CreatedAt: link.CreatedAt,
		ExpiresAt: link.ExpiresAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// Consume locks the row, decides the outcome, and marks it used in one
// transaction. The row lock serializes concurrent redemptions of the same
// token: the second caller observes used_at set and gets ErrTokenConsumed.
func (r *magicLinkRepository) Consume(ctx context.Context, tokenHash string, usedAt time.Time) (domain.MagicLink, error) {
	var rec magicLinkModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", tokenHash).
			Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if rec.UsedAt != nil {
			return domain.ErrTokenConsumed
		}
		if !rec.ExpiresAt.After(usedAt) {
			return domain.ErrTokenExpired
		}
		return tx.Model(&magicLinkModel{}).
			Where("link_id = ?", rec.LinkID).
			Update("used_at", usedAt).Error
	})
	if err != nil {
		return domain.MagicLink{}, err
	}
	return toDomainMagicLink(rec), nil
}
