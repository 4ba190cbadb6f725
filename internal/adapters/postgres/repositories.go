package postgres

import (
	"gorm.io/gorm"

	"github.com/bubblehq/bubble-backend/internal/ports"
)

// Repositories bundles all Postgres-backed port implementations.
type Repositories struct {
	Users         ports.UserRepository
	APIKeys       ports.APIKeyRepository
	Sessions      ports.SessionRepository
	MagicLinks    ports.MagicLinkRepository
	Recovery      ports.RecoveryRepository
	Nonces        *NonceRepository
	LoginAttempts ports.LoginAttemptRepository
	Audit         ports.SignatureAuditRepository
	Outbox        ports.OutboxRepository
	Idempotency   ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         &userRepository{db: db},
		APIKeys:       &apiKeyRepository{db: db},
		Sessions:      &sessionRepository{db: db},
		MagicLinks:    &magicLinkRepository{db: db},
		Recovery:      &recoveryRepository{db: db},
		Nonces:        &NonceRepository{db: db},
		LoginAttempts: &loginAttemptRepository{db: db},
		Audit:         &auditRepository{db: db},
		Outbox:        &outboxRepository{db: db},
		Idempotency:   &idempotencyRepository{db: db},
	}
}
