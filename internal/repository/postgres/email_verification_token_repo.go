package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/account-api/internal/domain/entity"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

type EmailVerificationTokenRepo struct {
	db *gorm.DB
}

func NewEmailVerificationTokenRepo(db *gorm.DB) *EmailVerificationTokenRepo {
	return &EmailVerificationTokenRepo{db: db}
}

func (r *EmailVerificationTokenRepo) Create(token *entity.EmailVerificationToken) error {
	return r.db.Create(token).Error
}

func (r *EmailVerificationTokenRepo) GetByToken(token string) (*entity.EmailVerificationToken, error) {
	var record entity.EmailVerificationToken
	err := r.db.Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	return &record, nil
}

func (r *EmailVerificationTokenRepo) GetByUserID(userID uint) (*entity.EmailVerificationToken, error) {
	var record entity.EmailVerificationToken
	err := r.db.Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verification token by user: %w", err)
	}
	return &record, nil
}

// DeleteByToken removes a token and reports how many rows went away. Callers
// use the count as the single-use gate under concurrent consumption.
func (r *EmailVerificationTokenRepo) DeleteByToken(token string) (int64, error) {
	result := r.db.Where("token = ?", token).Delete(&entity.EmailVerificationToken{})
	return result.RowsAffected, result.Error
}

func (r *EmailVerificationTokenRepo) DeleteByUserID(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&entity.EmailVerificationToken{}).Error
}

func (r *EmailVerificationTokenRepo) DeleteExpired() (int64, error) {
	result := r.db.Where("expires_at < ?", time.Now()).Delete(&entity.EmailVerificationToken{})
	return result.RowsAffected, result.Error
}
