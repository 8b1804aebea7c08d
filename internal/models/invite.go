package models

// Invite is a single-use, token-gated offer of access to one app environment.
// Only the public lookup half of the token is stored in clear; the secret
// half is stored as a hash. Existence is status: redemption deletes the row,
// and a deleted invite is indistinguishable from one that never existed.
type Invite struct {
	BaseModel

	AppID       string `gorm:"type:uuid;not null;index" json:"app_id"`
	Environment string `gorm:"not null" json:"environment"`
	Email       string `json:"email,omitempty"`

	TokenLookupID   string `gorm:"uniqueIndex;not null;size:5" json:"-"`
	TokenSecretHash string `gorm:"not null" json:"-"`

	App *App `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Status is always pending while the record exists; redemption removes it.
func (Invite) Status() string { return "pending" }
