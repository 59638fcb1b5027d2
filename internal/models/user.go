package models

import "time"

// Auth providers a user account can be bound to. Local users log in with a
// password, Google users only through OAuth.
const (
	ProviderLocal  = "Local"
	ProviderGoogle = "Google"
)

// User is the sole persisted entity. Email is the primary key and immutable.
// VerificationToken and TokenExpiresAt are present together while the account
// is unverified and cleared together on verification.
type User struct {
	Email             string     `gorm:"primaryKey" json:"email"`
	PasswordHash      string     `gorm:"not null" json:"-"`
	IsVerified        bool       `gorm:"default:false" json:"is_verified"`
	VerificationToken *string    `gorm:"uniqueIndex" json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	AuthProvider      string     `gorm:"not null" json:"auth_provider"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
