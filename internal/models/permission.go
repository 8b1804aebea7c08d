package models

import "gorm.io/datatypes"

// Permission records which environments of an app a user may access.
// The composite unique index guarantees at most one row per (user, app) pair;
// widening access extends Environments on the existing row.
type Permission struct {
	BaseModel

	AppID        string                     `gorm:"type:uuid;not null;uniqueIndex:idx_perm_user_app" json:"app_id"`
	UserID       string                     `gorm:"type:uuid;not null;uniqueIndex:idx_perm_user_app;index" json:"user_id"`
	Environments datatypes.JSONSlice[string] `json:"environments"`

	App  *App  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// HasEnvironment reports whether the permission already covers the environment.
func (p *Permission) HasEnvironment(envID string) bool {
	for _, id := range p.Environments {
		if id == envID {
			return true
		}
	}
	return false
}

// AddEnvironment extends the environment set, skipping duplicates.
func (p *Permission) AddEnvironment(envID string) {
	if p.HasEnvironment(envID) {
		return
	}
	p.Environments = append(p.Environments, envID)
}
