package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
	"github.com/yourusername/account-api/internal/service"
)

// Имена кук, устанавливаемых при входе
const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// AuthHandler обрабатывает запросы, связанные с аутентификацией
type AuthHandler struct {
	authService         *service.AuthService
	verificationService *service.EmailVerificationService

	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration
	secureCookies        bool
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(
	authService *service.AuthService,
	verificationService *service.EmailVerificationService,
	accessTokenLifetime time.Duration,
	refreshTokenLifetime time.Duration,
	secureCookies bool,
) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		verificationService:  verificationService,
		accessTokenLifetime:  accessTokenLifetime,
		refreshTokenLifetime: refreshTokenLifetime,
		secureCookies:        secureCookies,
	}
}

// Структуры запросов и ответов

// RegisterRequest представляет запрос на регистрацию
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id" binding:"omitempty"`
}

// ChangePasswordRequest представляет запрос на изменение пароля
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

// RevokeSessionRequest представляет запрос на отзыв отдельной сессии
type RevokeSessionRequest struct {
	SessionID uint `json:"session_id" binding:"required"`
}

// ResendVerificationRequest представляет запрос на повторную отправку письма
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyEmailRequest представляет запрос на подтверждение email по токену
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// SessionInfo представляет информацию о сессии
type SessionInfo struct {
	ID        uint      `json:"id"`
	DeviceID  string    `json:"device_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register обрабатывает запрос на регистрацию
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	user, err := h.authService.RegisterUser(c.Request.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	log.Printf("[AuthHandler] Пользователь ID=%d (%s) успешно зарегистрирован", user.ID, user.Email)

	// Генерируем токены сразу после регистрации
	pair, err := h.authService.LoginUser(req.Email, req.Password, "", c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusCreated, gin.H{
		"user":        user,
		"accessToken": pair.AccessToken,
		"userId":      pair.UserID,
		"expiresIn":   pair.ExpiresIn,
		"tokenType":   pair.TokenType,
	})
}

// Login обрабатывает запрос на вход
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	// Используем DeviceID из запроса, если предоставлен
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = c.Request.UserAgent()
	}

	pair, err := h.authService.LoginUser(req.Email, req.Password, deviceID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	user, userErr := h.authService.GetUserByID(pair.UserID)
	if userErr != nil {
		log.Printf("[AuthHandler] Ошибка получения пользователя ID=%d после логина: %v", pair.UserID, userErr)
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"accessToken": pair.AccessToken,
		"userId":      pair.UserID,
		"expiresIn":   pair.ExpiresIn,
		"tokenType":   pair.TokenType,
	})
}

// RefreshToken обновляет пару токенов, получая refresh токен из куки или тела
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	refreshToken := h.refreshTokenFromRequest(c)
	if refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token required", "error_type": "token_missing"})
		return
	}

	pair, err := h.authService.RefreshTokens(refreshToken, "", c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": pair.AccessToken,
		"userId":      pair.UserID,
		"expiresIn":   pair.ExpiresIn,
		"tokenType":   pair.TokenType,
	})
}

// Logout обрабатывает выход пользователя.
// Извлекает refresh токен из HttpOnly куки, отзывает сессию
// и очищает куки на стороне клиента.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken := h.refreshTokenFromRequest(c)
	if refreshToken == "" {
		h.clearAuthCookies(c)
		c.JSON(http.StatusOK, gin.H{"message": "Already logged out or session expired"})
		return
	}

	if err := h.authService.LogoutUser(refreshToken); err != nil {
		log.Printf("[AuthHandler] Logout: Failed to revoke session: %v", err)
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// LogoutAllDevices обрабатывает запрос на выход со всех устройств
func (h *AuthHandler) LogoutAllDevices(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	if err := h.authService.LogoutAllDevices(userID); err != nil {
		log.Printf("[AuthHandler] Ошибка при выходе из всех сессий: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out of all sessions", "error_type": "internal_error"})
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out of all sessions"})
}

// GetActiveSessions возвращает список активных сессий пользователя
func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	sessions, err := h.authService.GetUserActiveSessions(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get active sessions", "error_type": "internal_error"})
		return
	}

	result := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, SessionInfo{
			ID:        session.ID,
			DeviceID:  session.DeviceID,
			IPAddress: session.IPAddress,
			UserAgent: session.UserAgent,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": result,
		"count":    len(result),
	})
}

// RevokeSession обрабатывает запрос на отзыв отдельной сессии
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req RevokeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	// Проверяем, что сессия принадлежит пользователю
	owned, err := h.authService.IsSessionOwnedByUser(userID, req.SessionID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "error_type": "not_found"})
		return
	}

	reason := c.Query("reason")
	if reason == "" {
		reason = "user_revoked"
	}

	if err := h.authService.RevokeSessionByID(req.SessionID, reason); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked", "session_id": req.SessionID})
}

// ChangePassword обрабатывает запрос на изменение пароля пользователя
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	if err := h.authService.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// ResendVerificationEmail обрабатывает запрос на повторную отправку письма
// с подтверждением. Публичный endpoint, ответ не раскрывает существование аккаунта.
func (h *AuthHandler) ResendVerificationEmail(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	if err := h.verificationService.SendVerificationEmail(c.Request.Context(), req.Email, false); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

// VerifyEmail подтверждает email по одноразовому токену из письма
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	user, err := h.verificationService.ConsumeToken(c.Request.Context(), req.Token)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified",
		"user": gin.H{
			"id":                user.ID,
			"email":             user.Email,
			"email_verified_at": user.EmailVerifiedAt,
		},
	})
}

// Вспомогательные методы

// refreshTokenFromRequest берет refresh токен из HttpOnly куки, при отсутствии
// куки пробует тело запроса для обратной совместимости
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookie); err == nil && token != "" {
		return token
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

// setAuthCookies устанавливает HttpOnly куки с токенами
func (h *AuthHandler) setAuthCookies(c *gin.Context, pair *service.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, pair.AccessToken, int(h.accessTokenLifetime.Seconds()), "/", "", h.secureCookies, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, int(h.refreshTokenLifetime.Seconds()), "/", "", h.secureCookies, true)
}

// clearAuthCookies очищает куки с токенами
func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", h.secureCookies, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", h.secureCookies, true)
}

// handleAuthError обрабатывает ошибки сервисов и возвращает соответствующие HTTP-ответы
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	log.Printf("[AuthHandler] Auth Error: %v", err)

	switch {
	case errors.Is(err, service.ErrRegistrationDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "Registration is currently disabled", "error_type": "registration_disabled"})
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": "Email is already verified", "error_type": "email_already_verified"})
	case errors.Is(err, service.ErrVerificationResendCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Please wait before requesting a new link", "error_type": "verification_resend_cooldown"})
	case errors.Is(err, service.ErrVerificationTokenExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification link has expired", "error_type": "verification_token_expired"})
	case errors.Is(err, service.ErrMailingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Email delivery is not available", "error_type": "mailing_disabled"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials or session", "error_type": "unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied", "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrExpiredToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired", "error_type": "token_expired"})
	case errors.Is(err, apperrors.ErrTooManyRequests):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "error_type": "rate_limited"})
	case errors.Is(err, apperrors.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable", "error_type": "unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
