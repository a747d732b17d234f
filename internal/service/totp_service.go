package service

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/tyler-smith/go-bip39"

	"github.com/yourusername/account-api/internal/domain/entity"
	"github.com/yourusername/account-api/internal/domain/repository"
)

const (
	totpSecretBytes    = 20
	mnemonicWordCount  = 12
	mnemonicMaxRetries = 100
)

// OtpEnrollment is returned from GenerateSecret so the client can render the
// QR code and show the recovery mnemonic exactly once.
type OtpEnrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	Mnemonic        []string `json:"mnemonic"`
}

// TOTPService drives the two-factor enrollment state machine: none -> pending
// (GenerateSecret) -> active (VerifyCode) -> none (Deactivate).
type TOTPService struct {
	userRepo repository.UserRepository
	issuer   string
	demoMode bool
}

func NewTOTPService(userRepo repository.UserRepository, issuer string, demoMode bool) *TOTPService {
	return &TOTPService{
		userRepo: userRepo,
		issuer:   issuer,
		demoMode: demoMode,
	}
}

// GenerateSecret creates a fresh secret and recovery mnemonic for the user and
// stores them in the pending state. Re-running while pending rotates the
// secret; running while active fails with ErrOtpAlreadyEnrolled.
func (s *TOTPService) GenerateSecret(userID uint) (*OtpEnrollment, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if s.demoMode && user.Role == entity.RoleAdmin {
		return nil, fmt.Errorf("%w: two-factor auth is not available for demo admin accounts", ErrDemoAdminOtpForbidden)
	}

	if user.OtpStatus() == entity.OtpStateActive {
		return nil, fmt.Errorf("%w: two-factor auth is already enabled", ErrOtpAlreadyEnrolled)
	}

	secret, err := generateTotpSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	words, err := generateMnemonic()
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.SetOtpSecret(userID, secret, strings.Join(words, " ")); err != nil {
		return nil, err
	}

	log.Printf("[TOTPService] Generated new OTP secret for user ID=%d", userID)
	return &OtpEnrollment{
		Secret:          secret,
		ProvisioningURI: s.provisioningURI(user.Email, secret),
		Mnemonic:        words,
	}, nil
}

// VerifyCode checks a 6-digit code against the stored secret. The first valid
// code moves the enrollment from pending to active; subsequent valid codes are
// accepted without further writes.
func (s *TOTPService) VerifyCode(userID uint, code string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	if user.OtpSecret == "" {
		return fmt.Errorf("%w: two-factor auth has not been set up", ErrOtpNotEnrolled)
	}

	if !totp.Validate(code, user.OtpSecret) {
		return fmt.Errorf("%w: code does not match", ErrInvalidOtpCode)
	}

	if !user.OtpVerified {
		if err := s.userRepo.ActivateOtp(userID, user.OtpSecret); err != nil {
			return err
		}
		log.Printf("[TOTPService] Activated two-factor auth for user ID=%d", userID)
	}

	return nil
}

// Deactivate turns two-factor auth off. A valid current code is required and
// the secret, mnemonic and verified flag are cleared in one update.
func (s *TOTPService) Deactivate(userID uint, code string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	if user.OtpSecret == "" {
		return fmt.Errorf("%w: two-factor auth has not been set up", ErrOtpNotEnrolled)
	}

	if !totp.Validate(code, user.OtpSecret) {
		return fmt.Errorf("%w: code does not match", ErrInvalidOtpCode)
	}

	if err := s.userRepo.ClearOtp(userID, user.OtpSecret); err != nil {
		return err
	}

	log.Printf("[TOTPService] Deactivated two-factor auth for user ID=%d", userID)
	return nil
}

// Status reports the enrollment state for the profile endpoint.
func (s *TOTPService) Status(userID uint) (entity.OtpState, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return entity.OtpStateNone, err
	}
	return user.OtpStatus(), nil
}

// provisioningURI builds the otpauth URL consumed by authenticator apps.
// Only secret and issuer are included, the apps apply SHA1/6 digits/30s
// defaults on their own.
func (s *TOTPService) provisioningURI(account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(s.issuer), url.PathEscape(account), secret, url.QueryEscape(s.issuer))
}

func generateTotpSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// generateMnemonic produces a 12 word recovery phrase with pairwise distinct
// words. BIP39 entropy can repeat words, so it retries until a duplicate-free
// phrase comes out.
func generateMnemonic() ([]string, error) {
	for attempt := 0; attempt < mnemonicMaxRetries; attempt++ {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return nil, fmt.Errorf("failed to generate entropy: %w", err)
		}
		phrase, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
		}
		words := strings.Fields(phrase)
		if len(words) != mnemonicWordCount {
			continue
		}
		if allDistinct(words) {
			return words, nil
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrMnemonicGeneration, mnemonicMaxRetries)
}

func allDistinct(words []string) bool {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			return false
		}
		seen[w] = struct{}{}
	}
	return true
}
