package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/account-api/internal/domain/entity"
	"github.com/yourusername/account-api/internal/domain/repository"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
	"github.com/yourusername/account-api/pkg/storage"
)

// UserService предоставляет методы для работы с пользователями
type UserService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	objects     storage.ObjectStorage // nil, если хранилище не настроено
}

// NewUserService создает новый сервис пользователей
func NewUserService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, objects storage.ObjectStorage) *UserService {
	return &UserService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		objects:     objects,
	}
}

// GetByID возвращает пользователя по ID
func (s *UserService) GetByID(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// UpdateProfile обновляет имя пользователя, проверяя его уникальность
func (s *UserService) UpdateProfile(userID uint, username string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if username != user.Username {
		existing, err := s.userRepo.GetByUsername(username)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to check username availability: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: username '%s' already taken", apperrors.ErrConflict, username)
		}
	}

	updates := map[string]interface{}{
		"username": username,
	}
	if err := s.userRepo.UpdateProfile(userID, updates); err != nil {
		return nil, err
	}

	user.Username = username
	return user, nil
}

var allowedAvatarTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// UploadAvatar загружает аватар в объектное хранилище и обновляет профиль
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, r io.Reader, contentType string) (string, error) {
	if s.objects == nil {
		return "", fmt.Errorf("%w: avatar storage is not configured", apperrors.ErrUnavailable)
	}

	ext, ok := allowedAvatarTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported avatar content type %q", apperrors.ErrValidation, contentType)
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("avatars/%d/%s.%s", userID, uuid.NewString(), ext)
	avatarURL, err := s.objects.Upload(ctx, key, r, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	updates := map[string]interface{}{
		"profile_picture": avatarURL,
	}
	if err := s.userRepo.UpdateProfile(userID, updates); err != nil {
		return "", err
	}

	// Старый аватар удаляем по возможности, ошибка не критична
	if old := avatarKeyFromURL(user.ProfilePicture); old != "" {
		if err := s.objects.Delete(ctx, old); err != nil {
			log.Printf("[UserService] Ошибка удаления старого аватара пользователя ID=%d: %v", userID, err)
		}
	}

	log.Printf("[UserService] Обновлен аватар пользователя ID=%d", userID)
	return avatarURL, nil
}

// DeleteAccount удаляет аккаунт пользователя вместе с его сессиями.
// Администраторы не могут удалить свой аккаунт через этот метод.
func (s *UserService) DeleteAccount(userID uint) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	if user.Role == entity.RoleAdmin {
		return fmt.Errorf("%w: admin accounts cannot be deleted", apperrors.ErrForbidden)
	}

	if err := s.sessionRepo.RevokeAllForUser(userID, "account_deleted"); err != nil {
		log.Printf("[UserService] Ошибка отзыва сессий при удалении пользователя ID=%d: %v", userID, err)
	}

	if err := s.userRepo.Delete(userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	log.Printf("[UserService] Удален аккаунт пользователя ID=%d", userID)
	return nil
}

// avatarKeyFromURL извлекает ключ объекта из публичного URL аватара
func avatarKeyFromURL(avatarURL string) string {
	if avatarURL == "" {
		return ""
	}
	idx := strings.Index(avatarURL, "/avatars/")
	if idx < 0 {
		return ""
	}
	return path.Clean(strings.TrimPrefix(avatarURL[idx:], "/"))
}
