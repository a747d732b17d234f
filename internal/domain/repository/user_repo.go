package repository

import (
	"time"

	"github.com/yourusername/account-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	GetByUsername(username string) (*entity.User, error)
	Update(user *entity.User) error
	UpdateProfile(userID uint, updates map[string]interface{}) error
	Delete(userID uint) error

	// MarkEmailVerified stamps email_verified_at. Returns apperrors.ErrConflict
	// if the email is already verified (the stamp is set exactly once).
	MarkEmailVerified(userID uint, verifiedAt time.Time) error

	// SetOtpSecret stores a fresh secret and mnemonic. The update is
	// conditional on otp_verified = false; a concurrent activation loses the
	// race and the caller gets apperrors.ErrConflict.
	SetOtpSecret(userID uint, secret, mnemonic string) error

	// ActivateOtp flips otp_verified, conditional on the secret still being
	// the one the caller validated against.
	ActivateOtp(userID uint, secret string) error

	// ClearOtp removes secret, mnemonic and the verified flag in one update,
	// conditional on the secret the caller validated against.
	ClearOtp(userID uint, secret string) error
}
