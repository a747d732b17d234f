package repository

import "github.com/yourusername/account-api/internal/domain/entity"

// EmailVerificationTokenRepository persists single-use verification link tokens.
type EmailVerificationTokenRepository interface {
	Create(token *entity.EmailVerificationToken) error
	GetByToken(token string) (*entity.EmailVerificationToken, error)
	GetByUserID(userID uint) (*entity.EmailVerificationToken, error)
	// DeleteByToken returns the number of rows removed so callers can tell
	// whether they won a concurrent consumption race.
	DeleteByToken(token string) (int64, error)
	DeleteByUserID(userID uint) error
	DeleteExpired() (int64, error)
}
