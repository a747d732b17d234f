package entity

import "time"

// Session stores a refresh token session record (hash-only model).
type Session struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	TokenHash string     `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	DeviceID  string     `gorm:"size:255;not null" json:"device_id"`
	IPAddress string     `gorm:"size:50;not null;default:''" json:"ip_address"`
	UserAgent string     `gorm:"type:text;not null;default:''" json:"user_agent"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	Reason    string     `gorm:"size:255" json:"reason,omitempty"`
}

// NewSession creates a session entity using a precomputed SHA-256 token hash.
func NewSession(userID uint, tokenHash, deviceID, ipAddress, userAgent string, expiresAt time.Time) *Session {
	return &Session{
		UserID:    userID,
		TokenHash: tokenHash,
		DeviceID:  deviceID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

// IsValid checks that the session has not been revoked or expired.
func (s *Session) IsValid() bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(time.Now())
}

// Revoke marks the session as revoked with a reason.
func (s *Session) Revoke(reason string) {
	now := time.Now()
	s.RevokedAt = &now
	s.Reason = reason
}

func (Session) TableName() string {
	return "sessions"
}
