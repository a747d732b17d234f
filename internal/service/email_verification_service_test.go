package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/account-api/internal/domain/entity"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

func createTestVerificationService(
	t *testing.T,
	userRepo *MockUserRepository,
	tokenRepo *MockEmailVerificationTokenRepository,
	mail *MockEmailService,
	mailingEnabled bool,
) *EmailVerificationService {
	t.Helper()
	svc, err := NewEmailVerificationService(
		userRepo, tokenRepo, mail, mailingEnabled,
		"https://app.example.com", 24*time.Hour, 30*time.Minute)
	require.NoError(t, err)
	return svc
}

func TestEmailVerificationService_Send_Success(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	user := &entity.User{ID: 3, Email: "someone@example.com"}
	mockUserRepo.On("GetByEmail", "someone@example.com").Return(user, nil)
	mockTokenRepo.On("GetByUserID", uint(3)).Return(nil, apperrors.ErrNotFound)

	var created *entity.EmailVerificationToken
	mockTokenRepo.On("Create", mock.AnythingOfType("*entity.EmailVerificationToken")).
		Run(func(args mock.Arguments) {
			created = args.Get(0).(*entity.EmailVerificationToken)
		}).
		Return(nil)
	mockMail.On("SendVerificationLink", mock.Anything, "someone@example.com", mock.AnythingOfType("string"), 24*time.Hour).Return(nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	err := svc.SendVerificationEmail(context.Background(), "Someone@Example.com", false)
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, uint(3), created.UserID)
	assert.NotEmpty(t, created.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), created.ExpiresAt, 5*time.Second)

	// Ссылка в письме содержит выданный токен
	link := mockMail.Calls[0].Arguments.String(2)
	assert.Contains(t, link, "https://app.example.com/verify-email?token=")
	assert.Contains(t, link, created.Token)

	mockMail.AssertExpectations(t)
}

func TestEmailVerificationService_Send_UnknownEmailLooksLikeSuccess(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	mockUserRepo.On("GetByEmail", "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	// Неизвестный адрес: успех в обоих режимах, письмо не отправляется
	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "ghost@example.com", true))
	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "ghost@example.com", false))
	mockMail.AssertNotCalled(t, "SendVerificationLink", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmailVerificationService_Send_AlreadyVerified(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	verifiedAt := time.Now().Add(-time.Hour)
	user := &entity.User{ID: 3, Email: "someone@example.com", EmailVerifiedAt: &verifiedAt}
	mockUserRepo.On("GetByEmail", "someone@example.com").Return(user, nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "someone@example.com", true))

	err := svc.SendVerificationEmail(context.Background(), "someone@example.com", false)
	assert.ErrorIs(t, err, ErrEmailAlreadyVerified)
}

func TestEmailVerificationService_Send_ResendCooldown(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	user := &entity.User{ID: 3, Email: "someone@example.com"}
	mockUserRepo.On("GetByEmail", "someone@example.com").Return(user, nil)

	// Токен выдан только что, до истечения почти полные 24 часа
	fresh := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "fresh-token",
		ExpiresAt: time.Now().Add(24*time.Hour - time.Minute),
	}
	mockTokenRepo.On("GetByUserID", uint(3)).Return(fresh, nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	err := svc.SendVerificationEmail(context.Background(), "someone@example.com", false)
	assert.ErrorIs(t, err, ErrVerificationResendCooldown)

	// В тихом режиме кулдаун не виден
	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "someone@example.com", true))
	mockTokenRepo.AssertNotCalled(t, "DeleteByUserID", mock.Anything)
}

func TestEmailVerificationService_Send_ReplacesStaleToken(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	user := &entity.User{ID: 3, Email: "someone@example.com"}
	mockUserRepo.On("GetByEmail", "someone@example.com").Return(user, nil)

	// Кулдаун прошел: до истечения осталось меньше, чем ttl - cooldown
	stale := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "stale-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	mockTokenRepo.On("GetByUserID", uint(3)).Return(stale, nil)
	mockTokenRepo.On("DeleteByUserID", uint(3)).Return(nil)
	mockTokenRepo.On("Create", mock.AnythingOfType("*entity.EmailVerificationToken")).Return(nil)
	mockMail.On("SendVerificationLink", mock.Anything, "someone@example.com", mock.AnythingOfType("string"), 24*time.Hour).Return(nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	err := svc.SendVerificationEmail(context.Background(), "someone@example.com", false)
	require.NoError(t, err)
	mockTokenRepo.AssertExpectations(t)
}

func TestEmailVerificationService_Send_MailingDisabled(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	user := &entity.User{ID: 3, Email: "someone@example.com"}
	mockUserRepo.On("GetByEmail", "someone@example.com").Return(user, nil)
	mockTokenRepo.On("GetByUserID", uint(3)).Return(nil, apperrors.ErrNotFound)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, false)

	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "someone@example.com", true))

	err := svc.SendVerificationEmail(context.Background(), "someone@example.com", false)
	assert.ErrorIs(t, err, ErrMailingDisabled)
	mockTokenRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestEmailVerificationService_Consume_Success(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockMail := new(MockEmailService)

	record := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "valid-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	user := &entity.User{ID: 3, Email: "someone@example.com"}

	mockTokenRepo.On("GetByToken", "valid-token").Return(record, nil)
	mockTokenRepo.On("DeleteByToken", "valid-token").Return(int64(1), nil)
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	mockUserRepo.On("MarkEmailVerified", uint(3), mock.AnythingOfType("time.Time")).Return(nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, mockMail, true)

	got, err := svc.ConsumeToken(context.Background(), "valid-token")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.EmailVerifiedAt)
	mockUserRepo.AssertExpectations(t)
	mockTokenRepo.AssertExpectations(t)
}

func TestEmailVerificationService_Consume_UnknownToken(t *testing.T) {
	mockTokenRepo := new(MockEmailVerificationTokenRepository)
	mockTokenRepo.On("GetByToken", "bogus").Return(nil, apperrors.ErrNotFound)

	svc := createTestVerificationService(t, new(MockUserRepository), mockTokenRepo, new(MockEmailService), true)

	got, err := svc.ConsumeToken(context.Background(), "bogus")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, got)
}

func TestEmailVerificationService_Consume_ExpiredTokenIsDeletedFirst(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)

	record := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "expired-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	mockTokenRepo.On("GetByToken", "expired-token").Return(record, nil)
	mockTokenRepo.On("DeleteByToken", "expired-token").Return(int64(1), nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, new(MockEmailService), true)

	got, err := svc.ConsumeToken(context.Background(), "expired-token")
	assert.ErrorIs(t, err, ErrVerificationTokenExpired)
	assert.Nil(t, got)

	// Токен одноразовый: удаление происходит до проверки срока
	mockTokenRepo.AssertCalled(t, "DeleteByToken", "expired-token")
	mockUserRepo.AssertNotCalled(t, "MarkEmailVerified", mock.Anything, mock.Anything)
}

func TestEmailVerificationService_Consume_LosesConcurrentRace(t *testing.T) {
	mockTokenRepo := new(MockEmailVerificationTokenRepository)

	record := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "contested-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	mockTokenRepo.On("GetByToken", "contested-token").Return(record, nil)
	// Параллельный запрос уже удалил токен
	mockTokenRepo.On("DeleteByToken", "contested-token").Return(int64(0), nil)

	svc := createTestVerificationService(t, new(MockUserRepository), mockTokenRepo, new(MockEmailService), true)

	got, err := svc.ConsumeToken(context.Background(), "contested-token")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, got)
}

func TestEmailVerificationService_Consume_OrphanToken(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)

	record := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    99,
		Token:     "orphan-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	mockTokenRepo.On("GetByToken", "orphan-token").Return(record, nil)
	mockTokenRepo.On("DeleteByToken", "orphan-token").Return(int64(1), nil)
	mockUserRepo.On("GetByID", uint(99)).Return(nil, apperrors.ErrNotFound)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, new(MockEmailService), true)

	got, err := svc.ConsumeToken(context.Background(), "orphan-token")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, got)
}

func TestEmailVerificationService_Consume_AlreadyVerified(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTokenRepo := new(MockEmailVerificationTokenRepository)

	verifiedAt := time.Now().Add(-time.Hour)
	record := &entity.EmailVerificationToken{
		ID:        1,
		UserID:    3,
		Token:     "late-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	user := &entity.User{ID: 3, Email: "someone@example.com", EmailVerifiedAt: &verifiedAt}

	mockTokenRepo.On("GetByToken", "late-token").Return(record, nil)
	mockTokenRepo.On("DeleteByToken", "late-token").Return(int64(1), nil)
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)

	svc := createTestVerificationService(t, mockUserRepo, mockTokenRepo, new(MockEmailService), true)

	got, err := svc.ConsumeToken(context.Background(), "late-token")
	assert.ErrorIs(t, err, ErrEmailAlreadyVerified)
	assert.Nil(t, got)
}
