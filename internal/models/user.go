package models

import "time"

// User holds the dual credentials for an account: the password hash and the
// hash of the single active API key. Plaintext secrets are never persisted;
// the key plaintext exists only in the response that issued it.
type User struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	APIKeyHash   string `gorm:"not null" json:"-"`

	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}
