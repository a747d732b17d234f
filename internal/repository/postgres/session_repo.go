package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/account-api/internal/domain/entity"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

// SessionRepo реализует интерфейс SessionRepository с использованием PostgreSQL и GORM
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo создает новый экземпляр SessionRepo и возвращает ошибку при проблемах
func NewSessionRepo(gormDB *gorm.DB) (*SessionRepo, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("GORM DB instance is required for SessionRepo")
	}
	return &SessionRepo{db: gormDB}, nil
}

// Create сохраняет новую сессию в базе данных и возвращает ее ID
func (r *SessionRepo) Create(session *entity.Session) (uint, error) {
	result := r.db.Create(session)
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка создания сессии: %w", result.Error)
	}
	if session.ID == 0 {
		return 0, fmt.Errorf("не удалось получить ID после создания сессии")
	}
	return session.ID, nil
}

// GetByTokenHash находит сессию по хешу refresh-токена
func (r *SessionRepo) GetByTokenHash(tokenHash string) (*entity.Session, error) {
	var session entity.Session
	result := r.db.Where("token_hash = ?", tokenHash).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии по хешу токена: %w", result.Error)
	}

	if session.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.ErrExpiredToken
	}

	return &session, nil
}

// GetByID находит сессию по ее ID
func (r *SessionRepo) GetByID(id uint) (*entity.Session, error) {
	var session entity.Session
	result := r.db.First(&session, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии по ID: %w", result.Error)
	}
	return &session, nil
}

// GetActiveForUser возвращает все активные (не отозванные и не истекшие) сессии пользователя
func (r *SessionRepo) GetActiveForUser(userID uint) ([]*entity.Session, error) {
	var sessions []*entity.Session
	result := r.db.
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Find(&sessions)
	if result.Error != nil {
		return nil, fmt.Errorf("ошибка получения активных сессий пользователя: %w", result.Error)
	}
	return sessions, nil
}

// CountActiveForUser возвращает количество активных сессий пользователя
func (r *SessionRepo) CountActiveForUser(userID uint) (int, error) {
	var count int64
	result := r.db.Model(&entity.Session{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка подсчета активных сессий: %w", result.Error)
	}
	return int(count), nil
}

// Revoke отзывает сессию по ID
func (r *SessionRepo) Revoke(id uint, reason string) error {
	result := r.db.Model(&entity.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     reason,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка отзыва сессии: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeAllForUser отзывает все активные сессии пользователя
func (r *SessionRepo) RevokeAllForUser(userID uint, reason string) error {
	return r.db.Model(&entity.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     reason,
		}).Error
}

// RevokeOldestForUser отзывает самые старые активные сессии пользователя,
// оставляя место для новой (применяется при достижении лимита сессий)
func (r *SessionRepo) RevokeOldestForUser(userID uint, limit int, reason string) error {
	subQuery := r.db.Model(&entity.Session{}).
		Select("id").
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("created_at ASC").
		Limit(limit)

	return r.db.Model(&entity.Session{}).
		Where("id IN (?)", subQuery).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     reason,
		}).Error
}

// DeleteExpired удаляет истекшие и отозванные сессии, возвращает количество удаленных
func (r *SessionRepo) DeleteExpired() (int64, error) {
	result := r.db.
		Where("expires_at < ? OR revoked_at IS NOT NULL", time.Now()).
		Delete(&entity.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка удаления истекших сессий: %w", result.Error)
	}
	return result.RowsAffected, nil
}
