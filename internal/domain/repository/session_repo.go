package repository

import "github.com/yourusername/account-api/internal/domain/entity"

// SessionRepository определяет методы для работы с сессиями (refresh-токенами)
type SessionRepository interface {
	Create(session *entity.Session) (uint, error)
	GetByTokenHash(tokenHash string) (*entity.Session, error)
	GetByID(id uint) (*entity.Session, error)
	GetActiveForUser(userID uint) ([]*entity.Session, error)
	CountActiveForUser(userID uint) (int, error)
	Revoke(id uint, reason string) error
	RevokeAllForUser(userID uint, reason string) error
	RevokeOldestForUser(userID uint, limit int, reason string) error
	DeleteExpired() (int64, error)
}
