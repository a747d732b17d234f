package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет учетную запись пользователя
type User struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Username       string `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email          string `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password       string `gorm:"size:100;not null" json:"-"`
	ProfilePicture string `gorm:"size:255;not null;default:''" json:"profile_picture"`
	Role           string `gorm:"size:20;not null;default:'user'" json:"-"` // "user" или "admin"

	EmailVerifiedAt *time.Time `gorm:"type:timestamp" json:"email_verified_at,omitempty"`

	// TOTP второй фактор. OtpVerified == true гарантирует непустой OtpSecret;
	// деактивация очищает все три поля одним апдейтом.
	OtpSecret   string `gorm:"size:64;not null;default:''" json:"-"`
	OtpMnemonic string `gorm:"size:255;not null;default:''" json:"-"`
	OtpVerified bool   `gorm:"not null;default:false" json:"otp_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin возвращает true для администраторов
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsEmailVerified возвращает true если email подтвержден
func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// OtpState описывает состояние подключения второго фактора.
type OtpState string

const (
	OtpStateNone    OtpState = "none"    // секрет не создан
	OtpStatePending OtpState = "pending" // секрет создан, но не подтвержден кодом
	OtpStateActive  OtpState = "active"  // секрет подтвержден
)

// OtpStatus возвращает текущее состояние TOTP для пользователя
func (u *User) OtpStatus() OtpState {
	switch {
	case u.OtpSecret == "":
		return OtpStateNone
	case !u.OtpVerified:
		return OtpStatePending
	default:
		return OtpStateActive
	}
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (u *User) BeforeSave(tx *gorm.DB) error {
	// Хешируем пароль только если он:
	// 1. Не пустой
	// 2. Не является уже bcrypt-хешем (начинается с "$2a$", "$2b$" или "$2y$")
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Ошибка при хешировании пароля для email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
