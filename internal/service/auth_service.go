package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/account-api/internal/domain/entity"
	"github.com/yourusername/account-api/internal/domain/repository"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
	"github.com/yourusername/account-api/pkg/auth"
)

// AuthService предоставляет методы для работы с аутентификацией и сессиями
type AuthService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	jwtService  *auth.JWTService

	// Опциональная зависимость, настраивается из main.
	emailVerificationService *EmailVerificationService

	sessionLimit         int
	refreshTokenLifetime time.Duration
	registrationEnabled  bool
}

// RegisterInput содержит все данные для регистрации
type RegisterInput struct {
	Username string
	Email    string
	Password string

	// Метаданные
	IP        string
	UserAgent string
}

// TokenPair содержит пару токенов, выдаваемую при входе и обновлении
type TokenPair struct {
	UserID       uint   `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	jwtService *auth.JWTService,
	sessionLimit int,
	refreshTokenLifetime time.Duration,
	registrationEnabled bool,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if sessionRepo == nil {
		return nil, fmt.Errorf("SessionRepository is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	if sessionLimit <= 0 {
		sessionLimit = 10
	}
	if refreshTokenLifetime <= 0 {
		refreshTokenLifetime = 30 * 24 * time.Hour
	}

	return &AuthService{
		userRepo:             userRepo,
		sessionRepo:          sessionRepo,
		jwtService:           jwtService,
		sessionLimit:         sessionLimit,
		refreshTokenLifetime: refreshTokenLifetime,
		registrationEnabled:  registrationEnabled,
	}, nil
}

// SetEmailVerificationService подключает сервис верификации email (опционально)
func (s *AuthService) SetEmailVerificationService(svc *EmailVerificationService) {
	s.emailVerificationService = svc
}

// RegisterUser регистрирует нового пользователя
func (s *AuthService) RegisterUser(ctx context.Context, input RegisterInput) (*entity.User, error) {
	if !s.registrationEnabled {
		return nil, fmt.Errorf("%w: new registrations are currently disabled", ErrRegistrationDisabled)
	}

	// Нормализуем
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)

	if input.Username == "" || input.Email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", apperrors.ErrValidation)
	}

	// Проверяем, существует ли пользователь с таким email
	_, err := s.userRepo.GetByEmail(input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	// Проверяем, существует ли пользователь с таким username
	_, err = s.userRepo.GetByUsername(input.Username)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this username already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}

	user := &entity.User{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
		Role:     entity.RoleUser,
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Отправляем письмо с подтверждением; ошибка не прерывает регистрацию
	if s.emailVerificationService != nil {
		if err := s.emailVerificationService.SendVerificationEmail(ctx, user.Email, true); err != nil {
			log.Printf("[AuthService] Ошибка отправки письма с подтверждением для пользователя ID=%d: %v", user.ID, err)
		}
	}

	log.Printf("[AuthService] Зарегистрирован новый пользователь ID=%d (%s)", user.ID, user.Email)
	return user, nil
}

// AuthenticateUser проверяет учетные данные пользователя без создания токенов
func (s *AuthService) AuthenticateUser(email, password string) (*entity.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		log.Printf("[AuthService] Пользователь с email %s не найден: %v", email, err)
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}

	if !user.CheckPassword(password) {
		log.Printf("[AuthService] Неверный пароль для пользователя с email %s", email)
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}

	return user, nil
}

// LoginUser аутентифицирует пользователя и возвращает пару токенов
func (s *AuthService) LoginUser(email, password, deviceID, ipAddress, userAgent string) (*TokenPair, error) {
	user, err := s.AuthenticateUser(email, password)
	if err != nil {
		// Ошибка уже залогирована в AuthenticateUser
		return nil, err
	}

	pair, err := s.issueTokenPair(user, deviceID, ipAddress, userAgent)
	if err != nil {
		log.Printf("[AuthService] Ошибка генерации токенов для пользователя ID=%d: %v", user.ID, err)
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	log.Printf("[AuthService] Пользователь ID=%d (%s) успешно вошел в систему", user.ID, user.Email)
	return pair, nil
}

// RefreshTokens обновляет пару токенов, отзывая использованную сессию
func (s *AuthService) RefreshTokens(refreshToken, deviceID, ipAddress, userAgent string) (*TokenPair, error) {
	session, err := s.sessionRepo.GetByTokenHash(hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrExpiredToken) {
			return nil, fmt.Errorf("%w: invalid refresh token", apperrors.ErrUnauthorized)
		}
		return nil, err
	}
	if !session.IsValid() {
		return nil, fmt.Errorf("%w: session has been revoked", apperrors.ErrUnauthorized)
	}

	user, err := s.userRepo.GetByID(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user no longer exists", apperrors.ErrUnauthorized)
	}

	// Ротация: старая сессия отзывается до выдачи новой
	if err := s.sessionRepo.Revoke(session.ID, "rotated"); err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	pair, err := s.issueTokenPair(user, deviceID, ipAddress, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	log.Printf("[AuthService] Токены успешно обновлены для пользователя ID=%d", user.ID)
	return pair, nil
}

// issueTokenPair создает запись сессии и пару токенов, соблюдая лимит сессий
func (s *AuthService) issueTokenPair(user *entity.User, deviceID, ipAddress, userAgent string) (*TokenPair, error) {
	count, err := s.sessionRepo.CountActiveForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	if count >= s.sessionLimit {
		excess := count - s.sessionLimit + 1
		if err := s.sessionRepo.RevokeOldestForUser(user.ID, excess, "limit_exceeded"); err != nil {
			log.Printf("[AuthService] Ошибка при отзыве старых сессий пользователя ID=%d: %v", user.ID, err)
		}
	}

	refreshToken := uuid.NewString()
	session := entity.NewSession(
		user.ID,
		hashRefreshToken(refreshToken),
		deviceID,
		ipAddress,
		userAgent,
		time.Now().Add(s.refreshTokenLifetime),
	)
	if _, err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := s.jwtService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &TokenPair{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.jwtService.TokenLifetime().Seconds()),
	}, nil
}

// LogoutUser отзывает указанный refresh токен
func (s *AuthService) LogoutUser(refreshToken string) error {
	session, err := s.sessionRepo.GetByTokenHash(hashRefreshToken(refreshToken))
	if err != nil {
		// Токен уже недействителен, считаем логаут успешным
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrExpiredToken) {
			return nil
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if err := s.sessionRepo.Revoke(session.ID, "logout"); err != nil {
		log.Printf("[AuthService] Ошибка отзыва сессии ID=%d: %v", session.ID, err)
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	log.Printf("[AuthService] Сессия ID=%d успешно отозвана", session.ID)
	return nil
}

// LogoutAllDevices отзывает все сессии пользователя
func (s *AuthService) LogoutAllDevices(userID uint) error {
	if err := s.sessionRepo.RevokeAllForUser(userID, "logout_all"); err != nil {
		log.Printf("[AuthService] Ошибка при отзыве всех сессий пользователя ID=%d: %v", userID, err)
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	log.Printf("[AuthService] Все сессии для пользователя ID=%d завершены", userID)
	return nil
}

// ChangePassword изменяет пароль пользователя и отзывает все сессии
func (s *AuthService) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	if !user.CheckPassword(oldPassword) {
		return fmt.Errorf("%w: incorrect old password", apperrors.ErrUnauthorized)
	}

	// Хук BeforeSave захеширует новый пароль
	user.Password = newPassword
	if err := s.userRepo.Update(user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return s.sessionRepo.RevokeAllForUser(userID, "password_changed")
}

// GetUserActiveSessions возвращает активные сессии пользователя
func (s *AuthService) GetUserActiveSessions(userID uint) ([]*entity.Session, error) {
	sessions, err := s.sessionRepo.GetActiveForUser(userID)
	if err != nil {
		log.Printf("[AuthService] Ошибка получения активных сессий для пользователя ID=%d: %v", userID, err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// IsSessionOwnedByUser проверяет, принадлежит ли сессия пользователю
func (s *AuthService) IsSessionOwnedByUser(userID, sessionID uint) (bool, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.UserID == userID, nil
}

// RevokeSessionByID отзывает конкретную сессию по ее ID
func (s *AuthService) RevokeSessionByID(sessionID uint, reason string) error {
	if err := s.sessionRepo.Revoke(sessionID, reason); err != nil {
		log.Printf("[AuthService] Ошибка отзыва сессии ID=%d: %v", sessionID, err)
		return err
	}

	log.Printf("[AuthService] Сессия ID=%d успешно отозвана. Причина: %s", sessionID, reason)
	return nil
}

// GetUserByID возвращает пользователя по ID
func (s *AuthService) GetUserByID(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// GetUserByEmail возвращает пользователя по Email
func (s *AuthService) GetUserByEmail(email string) (*entity.User, error) {
	return s.userRepo.GetByEmail(normalizeEmail(email))
}

// CleanupExpiredSessions удаляет истекшие сессии
func (s *AuthService) CleanupExpiredSessions() (int64, error) {
	return s.sessionRepo.DeleteExpired()
}

// hashRefreshToken возвращает hex-кодированный SHA-256 хеш refresh токена.
// В базе хранятся только хеши.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// normalizeEmail приводит email к стандартному виду: trim пробелов + lowercase
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
