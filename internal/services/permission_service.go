package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/envault/envault/internal/models"
)

// ensureAttempts bounds the optimistic retry loop when concurrent callers
// race on the same (user, app) pair.
const ensureAttempts = 5

// PermissionService maintains the (user, app) -> environment set index.
type PermissionService struct {
	db *gorm.DB
}

// NewPermissionService constructs a PermissionService instance.
func NewPermissionService(db *gorm.DB) (*PermissionService, error) {
	if db == nil {
		return nil, errors.New("permission service: db is required")
	}
	return &PermissionService{db: db}, nil
}

// EnsureForEnv idempotently grants a user access to one environment of an
// app. A missing record is created with just that environment; an existing
// record has its set extended; a record already covering it is left alone.
func (s *PermissionService) EnsureForEnv(ctx context.Context, userID, appID, envID string) error {
	return s.ensureForEnv(ensureContext(ctx), s.db, userID, appID, envID)
}

// ensureForEnv runs against an explicit handle so invite redemption can call
// it inside its own transaction.
//
// Concurrency: creation uses an insert-or-ignore upsert on the (user, app)
// unique index. The conflict case must not surface as a statement error:
// Postgres aborts the whole enclosing transaction on one, which would sink a
// redemption that should have extended the existing row. Set extension uses
// the updated_at column as an optimistic guard so a lost update is retried
// instead of silently dropped.
func (s *PermissionService) ensureForEnv(ctx context.Context, db *gorm.DB, userID, appID, envID string) error {
	for attempt := 0; attempt < ensureAttempts; attempt++ {
		var perm models.Permission
		err := db.WithContext(ctx).
			Where("user_id = ? AND app_id = ?", userID, appID).
			First(&perm).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			perm = models.Permission{
				AppID:        appID,
				UserID:       userID,
				Environments: datatypes.NewJSONSlice([]string{envID}),
			}
			res := db.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "app_id"}, {Name: "user_id"}},
					DoNothing: true,
				}).
				Create(&perm)
			if res.Error != nil {
				return fmt.Errorf("permission service: create permission: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				return nil
			}
			// a concurrent caller created the record first; extend it instead
			continue
		}
		if err != nil {
			return fmt.Errorf("permission service: load permission: %w", err)
		}

		if perm.HasEnvironment(envID) {
			return nil
		}

		perm.AddEnvironment(envID)
		res := db.WithContext(ctx).
			Model(&models.Permission{}).
			Where("id = ? AND updated_at = ?", perm.ID, perm.UpdatedAt).
			Update("environments", perm.Environments)
		if res.Error != nil {
			return fmt.Errorf("permission service: extend permission: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
		// guard failed: another writer touched the row between load and update
	}

	return fmt.Errorf("permission service: ensure for env: retries exhausted for user %s app %s", userID, appID)
}

// ForUser returns every permission record the user holds.
func (s *PermissionService) ForUser(ctx context.Context, userID string) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("permission service: list permissions: %w", err)
	}
	return perms, nil
}

// ForAppEnv returns the permission records granting access to one environment
// of an app, used to compute which users may see it.
func (s *PermissionService) ForAppEnv(ctx context.Context, appID, envID string) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("permission service: list permissions: %w", err)
	}

	out := perms[:0]
	for _, perm := range perms {
		if perm.HasEnvironment(envID) {
			out = append(out, perm)
		}
	}
	return out, nil
}
