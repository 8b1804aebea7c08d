package models

// App is a tenant owning a set of named environments. The creating user
// becomes its first permitted member across the default environments.
type App struct {
	BaseModel

	Name string `gorm:"uniqueIndex;not null" json:"name"`

	Environments []Environment `gorm:"foreignKey:AppID" json:"environments,omitempty"`
}
