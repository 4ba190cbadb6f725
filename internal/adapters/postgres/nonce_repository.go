package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NonceRepository is the durable replay store behind the cache. The unique
// index on (key_id, nonce) makes insertion the atomic check: zero affected
// rows means the nonce was already seen.
type NonceRepository struct {
	db *gorm.DB
}

func NewNonceRepository(db *gorm.DB) *NonceRepository {
	return &NonceRepository{db: db}
}

func (r *NonceRepository) MarkOnce(ctx context.Context, keyID, nonce string, seenAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key_id"}, {Name: "nonce"}},
			DoNothing: true,
		}).
		Create(&hmacNonceModel{
			KeyID:  keyID,
			Nonce:  nonce,
			SeenAt: seenAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PruneSeenBefore removes nonces older than the replay window. Run
// periodically from the worker.
func (r *NonceRepository) PruneSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("seen_at < ?", cutoff).
		Delete(&hmacNonceModel{})
	return res.RowsAffected, res.Error
}
