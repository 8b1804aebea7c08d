package models

import "gorm.io/datatypes"

// Environment is a named configuration namespace scoped to one app.
// Names are unique per app, not globally.
type Environment struct {
	BaseModel

	AppID  string                               `gorm:"type:uuid;not null;index;uniqueIndex:idx_env_app_name" json:"app_id"`
	Name   string                               `gorm:"not null;uniqueIndex:idx_env_app_name" json:"name"`
	Values datatypes.JSONType[map[string]string] `json:"values"`

	App *App `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
