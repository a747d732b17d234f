package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
	"github.com/yourusername/account-api/internal/service"
)

// Максимальный размер загружаемого аватара
const maxAvatarSizeBytes = 5 << 20

// UserHandler обрабатывает запросы, связанные с профилем пользователя
type UserHandler struct {
	userService *service.UserService
	totpService *service.TOTPService
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(userService *service.UserService, totpService *service.TOTPService) *UserHandler {
	return &UserHandler{
		userService: userService,
		totpService: totpService,
	}
}

// UpdateProfileRequest представляет запрос на обновление профиля
type UpdateProfileRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	user, err := h.userService.GetByID(userID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"email_verified":  user.EmailVerifiedAt != nil,
		"profile_picture": user.ProfilePicture,
		"role":            user.Role,
		"otp_status":      user.OtpStatus(),
		"created_at":      user.CreatedAt,
	})
}

// UpdateProfile обновляет профиль пользователя
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(userID, req.Username)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// UploadAvatar принимает multipart form с полем avatar и загружает файл
// в объектное хранилище
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar file is required", "error_type": "validation_error"})
		return
	}
	if fileHeader.Size > maxAvatarSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar file is too large", "error_type": "validation_error"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("[UserHandler] Ошибка открытия загруженного файла: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file", "error_type": "internal_error"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	avatarURL, err := h.userService.UploadAvatar(c.Request.Context(), userID, file, contentType)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Avatar uploaded successfully",
		"profile_picture": avatarURL,
	})
}

// DeleteAccount удаляет аккаунт текущего пользователя
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	if err := h.userService.DeleteAccount(userID); err != nil {
		h.handleUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

// handleUserError возвращает HTTP-ответ в зависимости от типа ошибки
func (h *UserHandler) handleUserError(c *gin.Context, err error) {
	log.Printf("[UserHandler] Error: %v", err)

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied", "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage is not available", "error_type": "unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
