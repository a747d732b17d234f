package entity

import "time"

// EmailVerificationToken is a single-use link token for confirming ownership
// of an email address. At most one pending token exists per user; tokens are
// never updated in place, only created and deleted.
type EmailVerificationToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	Token     string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (EmailVerificationToken) TableName() string {
	return "email_verification_tokens"
}

func (t *EmailVerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
