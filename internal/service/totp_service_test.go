package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/account-api/internal/domain/entity"
	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

func createTestTOTPService(userRepo *MockUserRepository, demoMode bool) *TOTPService {
	return NewTOTPService(userRepo, "Account API", demoMode)
}

func currentTestCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestTOTPService_GenerateSecret_Success(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 3, Email: "someone@example.com", Role: entity.RoleUser}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	mockUserRepo.On("SetOtpSecret", uint(3), mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)

	svc := createTestTOTPService(mockUserRepo, false)

	enrollment, err := svc.GenerateSecret(3)
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	assert.NotEmpty(t, enrollment.Secret)
	assert.NotContains(t, enrollment.Secret, "=", "base32 секрет без padding")

	expectedURI := fmt.Sprintf("otpauth://totp/Account%%20API:someone@example.com?secret=%s&issuer=Account+API", enrollment.Secret)
	assert.Equal(t, expectedURI, enrollment.ProvisioningURI)

	require.Len(t, enrollment.Mnemonic, 12)
	seen := make(map[string]struct{})
	for _, word := range enrollment.Mnemonic {
		_, dup := seen[word]
		assert.False(t, dup, "слова мнемоники должны быть уникальными")
		seen[word] = struct{}{}
	}

	mockUserRepo.AssertExpectations(t)
}

func TestTOTPService_GenerateSecret_RotatesWhilePending(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 3, Email: "someone@example.com", OtpSecret: "OLDSECRET", OtpVerified: false}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	mockUserRepo.On("SetOtpSecret", uint(3), mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)

	svc := createTestTOTPService(mockUserRepo, false)

	enrollment, err := svc.GenerateSecret(3)
	require.NoError(t, err)
	assert.NotEqual(t, "OLDSECRET", enrollment.Secret)
}

func TestTOTPService_GenerateSecret_AlreadyActive(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 3, OtpSecret: "SECRET", OtpVerified: true}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	enrollment, err := svc.GenerateSecret(3)
	assert.ErrorIs(t, err, ErrOtpAlreadyEnrolled)
	assert.Nil(t, enrollment)
	mockUserRepo.AssertNotCalled(t, "SetOtpSecret", mock.Anything, mock.Anything, mock.Anything)
}

func TestTOTPService_GenerateSecret_DemoAdminForbidden(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 1, Role: entity.RoleAdmin}
	mockUserRepo.On("GetByID", uint(1)).Return(user, nil)

	svc := createTestTOTPService(mockUserRepo, true)

	enrollment, err := svc.GenerateSecret(1)
	assert.ErrorIs(t, err, ErrDemoAdminOtpForbidden)
	assert.Nil(t, enrollment)
}

func TestTOTPService_GenerateSecret_AdminAllowedOutsideDemoMode(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 1, Email: "admin@example.com", Role: entity.RoleAdmin}
	mockUserRepo.On("GetByID", uint(1)).Return(user, nil)
	mockUserRepo.On("SetOtpSecret", uint(1), mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)

	svc := createTestTOTPService(mockUserRepo, false)

	enrollment, err := svc.GenerateSecret(1)
	require.NoError(t, err)
	assert.NotNil(t, enrollment)
}

func TestTOTPService_VerifyCode_ActivatesPendingEnrollment(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	secret := "JBSWY3DPEHPK3PXP"
	user := &entity.User{ID: 3, OtpSecret: secret, OtpVerified: false}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	mockUserRepo.On("ActivateOtp", uint(3), secret).Return(nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.VerifyCode(3, currentTestCode(t, secret))
	require.NoError(t, err)
	mockUserRepo.AssertExpectations(t)
}

func TestTOTPService_VerifyCode_IdempotentWhenActive(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	secret := "JBSWY3DPEHPK3PXP"
	user := &entity.User{ID: 3, OtpSecret: secret, OtpVerified: true}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	// Повторная проверка кода не пишет в базу
	err := svc.VerifyCode(3, currentTestCode(t, secret))
	require.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "ActivateOtp", mock.Anything, mock.Anything)
}

func TestTOTPService_VerifyCode_InvalidCodeDoesNotMutate(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 3, OtpSecret: "JBSWY3DPEHPK3PXP", OtpVerified: false}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.VerifyCode(3, "000000")
	assert.ErrorIs(t, err, ErrInvalidOtpCode)
	mockUserRepo.AssertNotCalled(t, "ActivateOtp", mock.Anything, mock.Anything)
}

func TestTOTPService_VerifyCode_NotEnrolled(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockUserRepo.On("GetByID", uint(3)).Return(&entity.User{ID: 3}, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.VerifyCode(3, "123456")
	assert.ErrorIs(t, err, ErrOtpNotEnrolled)
}

func TestTOTPService_VerifyCode_ActivationConflictPropagates(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	secret := "JBSWY3DPEHPK3PXP"
	user := &entity.User{ID: 3, OtpSecret: secret, OtpVerified: false}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	// Секрет сменился между чтением и активацией
	mockUserRepo.On("ActivateOtp", uint(3), secret).Return(apperrors.ErrConflict)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.VerifyCode(3, currentTestCode(t, secret))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestTOTPService_Deactivate_Success(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	secret := "JBSWY3DPEHPK3PXP"
	user := &entity.User{ID: 3, OtpSecret: secret, OtpVerified: true}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)
	mockUserRepo.On("ClearOtp", uint(3), secret).Return(nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.Deactivate(3, currentTestCode(t, secret))
	require.NoError(t, err)
	mockUserRepo.AssertExpectations(t)
}

func TestTOTPService_Deactivate_InvalidCode(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	user := &entity.User{ID: 3, OtpSecret: "JBSWY3DPEHPK3PXP", OtpVerified: true}
	mockUserRepo.On("GetByID", uint(3)).Return(user, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.Deactivate(3, "000000")
	assert.ErrorIs(t, err, ErrInvalidOtpCode)
	mockUserRepo.AssertNotCalled(t, "ClearOtp", mock.Anything, mock.Anything)
}

func TestTOTPService_Deactivate_NotEnrolled(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockUserRepo.On("GetByID", uint(3)).Return(&entity.User{ID: 3}, nil)

	svc := createTestTOTPService(mockUserRepo, false)

	err := svc.Deactivate(3, "123456")
	assert.ErrorIs(t, err, ErrOtpNotEnrolled)
}

func TestGenerateMnemonic_WordsAreDistinct(t *testing.T) {
	// Генерация повторяется много раз, дубликаты слов недопустимы
	for i := 0; i < 50; i++ {
		words, err := generateMnemonic()
		require.NoError(t, err)
		require.Len(t, words, 12)

		seen := make(map[string]struct{}, len(words))
		for _, w := range words {
			_, dup := seen[w]
			require.False(t, dup, "дубликат слова %q в %s", w, strings.Join(words, " "))
			seen[w] = struct{}{}
		}
	}
}
