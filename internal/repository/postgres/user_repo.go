package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/account-api/internal/domain/entity"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя
func (r *UserRepo) Create(user *entity.User) error {
	return r.db.Create(user).Error
}

// GetByID возвращает пользователя по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername возвращает пользователя по имени пользователя
func (r *UserRepo) GetByUsername(username string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Update обновляет информацию о пользователе
func (r *UserRepo) Update(user *entity.User) error {
	return r.db.Save(user).Error
}

// UpdateProfile обновляет профиль пользователя без изменения пароля
func (r *UserRepo) UpdateProfile(userID uint, updates map[string]interface{}) error {
	// Пароль через этот метод не обновляется
	delete(updates, "password")
	updates["updated_at"] = time.Now()

	result := r.db.Model(&entity.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete удаляет пользователя
func (r *UserRepo) Delete(userID uint) error {
	result := r.db.Delete(&entity.User{}, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at exactly once.
func (r *UserRepo) MarkEmailVerified(userID uint, verifiedAt time.Time) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND email_verified_at IS NULL", userID).
		Updates(map[string]interface{}{
			"email_verified_at": verifiedAt,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark email verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// SetOtpSecret stores a new secret and mnemonic while enrollment is not yet
// confirmed. The otp_verified guard turns a concurrent activation into an
// explicit conflict instead of silently overwriting an active secret.
func (r *UserRepo) SetOtpSecret(userID uint, secret, mnemonic string) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND otp_verified = ?", userID, false).
		Updates(map[string]interface{}{
			"otp_secret":   secret,
			"otp_mnemonic": mnemonic,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set otp secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ActivateOtp flips otp_verified, guarded by the secret the code was checked
// against.
func (r *UserRepo) ActivateOtp(userID uint, secret string) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND otp_secret = ?", userID, secret).
		Updates(map[string]interface{}{
			"otp_verified": true,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to activate otp: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ClearOtp removes the secret, mnemonic and verified flag in a single update.
func (r *UserRepo) ClearOtp(userID uint, secret string) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND otp_secret = ?", userID, secret).
		Updates(map[string]interface{}{
			"otp_secret":   "",
			"otp_mnemonic": "",
			"otp_verified": false,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clear otp: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}
