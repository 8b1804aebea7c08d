package database

import (
	"gorm.io/gorm"

	"github.com/envault/envault/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Uniqueness on User.Email, App.Name, Permission (user, app) and
// Invite.TokenLookupID is enforced here through unique indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.App{},
		&models.Environment{},
		&models.Permission{},
		&models.Invite{},
	)
}
