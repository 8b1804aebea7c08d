package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/envault/envault/internal/models"
	apperrors "github.com/envault/envault/pkg/errors"
)

// ErrAppExists signals a name collision at app creation.
var ErrAppExists = apperrors.New("APP_EXISTS", "App already exists", http.StatusBadRequest)

// defaultEnvironments are created with every new app.
var defaultEnvironments = []string{"production", "staging", "development"}

// AppService manages tenant apps and their default environments.
type AppService struct {
	db *gorm.DB
}

// NewAppService constructs an AppService instance.
func NewAppService(db *gorm.DB) (*AppService, error) {
	if db == nil {
		return nil, errors.New("app service: db is required")
	}
	return &AppService{db: db}, nil
}

// Create provisions an app with its default environments and makes the
// creating user its first permitted member across all of them. The whole
// provisioning runs in one transaction.
func (s *AppService) Create(ctx context.Context, userID, name string) (*models.App, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	app := &models.App{Name: name}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAppExists
			}
			return fmt.Errorf("app service: create app: %w", err)
		}

		envIDs := make([]string, 0, len(defaultEnvironments))
		for _, envName := range defaultEnvironments {
			env := models.Environment{AppID: app.ID, Name: envName}
			if err := tx.Create(&env).Error; err != nil {
				return fmt.Errorf("app service: create environment %s: %w", envName, err)
			}
			envIDs = append(envIDs, env.ID)
		}

		perm := models.Permission{
			AppID:        app.ID,
			UserID:       userID,
			Environments: datatypes.NewJSONSlice(envIDs),
		}
		if err := tx.Create(&perm).Error; err != nil {
			return fmt.Errorf("app service: create permission: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return app, nil
}

// ForScope lists the apps reachable from an authorization scope.
func (s *AppService) ForScope(ctx context.Context, scope AuthScope) ([]models.App, error) {
	ctx = ensureContext(ctx)

	appIDs := scope.AppIDs()
	if len(appIDs) == 0 {
		return nil, nil
	}

	var apps []models.App
	if err := s.db.WithContext(ctx).
		Where("id IN ?", appIDs).
		Order("name").
		Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("app service: list apps: %w", err)
	}
	return apps, nil
}

// ByName resolves an app the scope may access. An app outside the scope is
// reported as missing, not forbidden.
func (s *AppService) ByName(ctx context.Context, scope AuthScope, name string) (*models.App, error) {
	ctx = ensureContext(ctx)

	var app models.App
	err := s.db.WithContext(ctx).First(&app, "name = ?", strings.TrimSpace(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("No such app")
	}
	if err != nil {
		return nil, fmt.Errorf("app service: load app: %w", err)
	}

	if !scope.CanAccessApp(app.ID) {
		return nil, apperrors.NewNotFound("No such app")
	}

	return &app, nil
}
