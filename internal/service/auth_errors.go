package service

import "errors"

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	ErrRegistrationDisabled       = errors.New("registration_disabled")
	ErrOtpAlreadyEnrolled         = errors.New("otp_already_enrolled")
	ErrOtpNotEnrolled             = errors.New("otp_not_enrolled")
	ErrInvalidOtpCode             = errors.New("otp_invalid")
	ErrDemoAdminOtpForbidden      = errors.New("demo_admin_otp_forbidden")
	ErrEmailAlreadyVerified       = errors.New("email_already_verified")
	ErrVerificationResendCooldown = errors.New("verification_resend_cooldown")
	ErrVerificationTokenExpired   = errors.New("verification_token_expired")
	ErrMailingDisabled            = errors.New("mailing_disabled")
)

// ErrMnemonicGeneration signals the bounded retry loop for a duplicate-free
// mnemonic was exhausted. It never maps to a user-facing error_type; seeing it
// means the randomness source is broken.
var ErrMnemonicGeneration = errors.New("could not generate a valid mnemonic")
