package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
	"github.com/yourusername/account-api/internal/service"
)

// TOTPHandler handles two-factor auth enrollment endpoints.
type TOTPHandler struct {
	totpService *service.TOTPService
}

func NewTOTPHandler(totpService *service.TOTPService) *TOTPHandler {
	return &TOTPHandler{totpService: totpService}
}

// OtpCodeRequest carries a 6-digit TOTP code.
type OtpCodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// GenerateSecret starts or restarts enrollment and returns the provisioning
// URI plus the recovery mnemonic. The mnemonic is shown only here.
func (h *TOTPHandler) GenerateSecret(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	enrollment, err := h.totpService.GenerateSecret(userID)
	if err != nil {
		h.handleOtpError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":           enrollment.Secret,
		"provisioning_uri": enrollment.ProvisioningURI,
		"mnemonic":         enrollment.Mnemonic,
	})
}

// VerifyCode checks a code and activates two-factor auth on first success.
func (h *TOTPHandler) VerifyCode(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req OtpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A 6-digit code is required", "error_type": "validation_error"})
		return
	}

	if err := h.totpService.VerifyCode(userID, req.Code); err != nil {
		h.handleOtpError(c, err)
		return
	}

	status, err := h.totpService.Status(userID)
	if err != nil {
		log.Printf("[TOTPHandler] Failed to read OTP status for user ID=%d: %v", userID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Code accepted",
		"otp_status": status,
	})
}

// Deactivate turns two-factor auth off after checking a current code.
func (h *TOTPHandler) Deactivate(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req OtpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A 6-digit code is required", "error_type": "validation_error"})
		return
	}

	if err := h.totpService.Deactivate(userID, req.Code); err != nil {
		h.handleOtpError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Two-factor auth disabled"})
}

// Status reports the enrollment state: none, pending or active.
func (h *TOTPHandler) Status(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	status, err := h.totpService.Status(userID)
	if err != nil {
		h.handleOtpError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"otp_status": status})
}

func (h *TOTPHandler) handleOtpError(c *gin.Context, err error) {
	log.Printf("[TOTPHandler] OTP Error: %v", err)

	switch {
	case errors.Is(err, service.ErrDemoAdminOtpForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Two-factor auth is not available for demo admin accounts", "error_type": "demo_admin_otp_forbidden"})
	case errors.Is(err, service.ErrOtpAlreadyEnrolled):
		c.JSON(http.StatusConflict, gin.H{"error": "Two-factor auth is already enabled", "error_type": "otp_already_enrolled"})
	case errors.Is(err, service.ErrOtpNotEnrolled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor auth has not been set up", "error_type": "otp_not_enrolled"})
	case errors.Is(err, service.ErrInvalidOtpCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code", "error_type": "otp_invalid"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Enrollment changed concurrently, please retry", "error_type": "conflict"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
