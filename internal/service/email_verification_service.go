package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/account-api/internal/domain/entity"
	"github.com/yourusername/account-api/internal/domain/repository"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

// EmailVerificationService issues and consumes single-use verification link
// tokens. Send responses never reveal whether an account exists.
type EmailVerificationService struct {
	userRepo        repository.UserRepository
	tokenRepo       repository.EmailVerificationTokenRepository
	emailService    EmailService
	mailingEnabled  bool
	baseURL         string
	verificationTTL time.Duration
	resendCooldown  time.Duration
}

func NewEmailVerificationService(
	userRepo repository.UserRepository,
	tokenRepo repository.EmailVerificationTokenRepository,
	emailService EmailService,
	mailingEnabled bool,
	baseURL string,
	verificationTTL time.Duration,
	resendCooldown time.Duration,
) (*EmailVerificationService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if tokenRepo == nil {
		return nil, fmt.Errorf("verification token repository is required")
	}
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if verificationTTL <= 0 {
		verificationTTL = 24 * time.Hour
	}
	if resendCooldown <= 0 {
		resendCooldown = 30 * time.Minute
	}

	return &EmailVerificationService{
		userRepo:        userRepo,
		tokenRepo:       tokenRepo,
		emailService:    emailService,
		mailingEnabled:  mailingEnabled,
		baseURL:         strings.TrimRight(baseURL, "/"),
		verificationTTL: verificationTTL,
		resendCooldown:  resendCooldown,
	}, nil
}

// SendVerificationEmail creates a fresh link token and mails it. In silent
// mode every outcome short of an infrastructure failure reports success so
// that callers cannot probe which addresses are registered.
func (s *EmailVerificationService) SendVerificationEmail(ctx context.Context, email string, silent bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		if silent {
			return nil
		}
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Unknown address looks exactly like a successful send.
			return nil
		}
		return err
	}

	if user.EmailVerifiedAt != nil {
		if silent {
			return nil
		}
		return fmt.Errorf("%w: email %s is already verified", ErrEmailAlreadyVerified, email)
	}

	now := time.Now()
	existing, err := s.tokenRepo.GetByUserID(user.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if existing != nil {
		if silent {
			return nil
		}
		if existing.ExpiresAt.Sub(now) > s.verificationTTL-s.resendCooldown {
			return fmt.Errorf("%w: please wait before requesting a new link", ErrVerificationResendCooldown)
		}
		if err := s.tokenRepo.DeleteByUserID(user.ID); err != nil {
			return fmt.Errorf("failed to delete stale verification token: %w", err)
		}
	}

	if !s.mailingEnabled {
		if silent {
			return nil
		}
		return fmt.Errorf("%w: email delivery is not configured", ErrMailingDisabled)
	}

	record := &entity.EmailVerificationToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.verificationTTL),
	}
	if err := s.tokenRepo.Create(record); err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, url.QueryEscape(record.Token))
	if err := s.emailService.SendVerificationLink(ctx, user.Email, link, s.verificationTTL); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	log.Printf("[EmailVerificationService] Sent verification link to user ID=%d", user.ID)
	return nil
}

// ConsumeToken redeems a link token and stamps the user verified. The token
// row is deleted before any validation, so a token observed once is gone even
// when it turns out to be expired or orphaned.
func (s *EmailVerificationService) ConsumeToken(ctx context.Context, token string) (*entity.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", apperrors.ErrValidation)
	}

	record, err := s.tokenRepo.GetByToken(token)
	if err != nil {
		return nil, err
	}

	deleted, err := s.tokenRepo.DeleteByToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	if deleted == 0 {
		// Lost the race to a concurrent consumption.
		return nil, apperrors.ErrNotFound
	}

	if record.IsExpired(time.Now()) {
		return nil, fmt.Errorf("%w: verification link has expired", ErrVerificationTokenExpired)
	}

	user, err := s.userRepo.GetByID(record.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if user.EmailVerifiedAt != nil {
		return nil, fmt.Errorf("%w: email %s is already verified", ErrEmailAlreadyVerified, user.Email)
	}

	verifiedAt := time.Now()
	if err := s.userRepo.MarkEmailVerified(user.ID, verifiedAt); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("%w: email %s is already verified", ErrEmailAlreadyVerified, user.Email)
		}
		return nil, err
	}
	user.EmailVerifiedAt = &verifiedAt

	log.Printf("[EmailVerificationService] Verified email for user ID=%d", user.ID)
	return user, nil
}

// CleanupExpired removes verification tokens that are past their expiry.
func (s *EmailVerificationService) CleanupExpired() (int64, error) {
	return s.tokenRepo.DeleteExpired()
}
