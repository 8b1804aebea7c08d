package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/envault/envault/internal/models"
	apperrors "github.com/envault/envault/pkg/errors"
)

// ErrEnvironmentExists signals a name collision within an app.
var ErrEnvironmentExists = apperrors.New("ENVIRONMENT_EXISTS", "Environment already exists", http.StatusBadRequest)

// EnvironmentService manages named configuration namespaces and their values.
// Every operation takes the caller's scope and answers "not found" for
// anything outside it.
type EnvironmentService struct {
	db    *gorm.DB
	apps  *AppService
	perms *PermissionService
}

// NewEnvironmentService constructs an EnvironmentService instance.
func NewEnvironmentService(db *gorm.DB, apps *AppService, perms *PermissionService) (*EnvironmentService, error) {
	if db == nil {
		return nil, errors.New("environment service: db is required")
	}
	if apps == nil {
		return nil, errors.New("environment service: app service is required")
	}
	if perms == nil {
		return nil, errors.New("environment service: permission service is required")
	}
	return &EnvironmentService{db: db, apps: apps, perms: perms}, nil
}

// ForApp lists the environments of an app that the scope may access.
func (s *EnvironmentService) ForApp(ctx context.Context, scope AuthScope, appName string) ([]models.Environment, error) {
	ctx = ensureContext(ctx)

	app, err := s.apps.ByName(ctx, scope, appName)
	if err != nil {
		return nil, err
	}

	var envs []models.Environment
	if err := s.db.WithContext(ctx).
		Where("app_id = ?", app.ID).
		Order("name").
		Find(&envs).Error; err != nil {
		return nil, fmt.Errorf("environment service: list environments: %w", err)
	}

	visible := envs[:0]
	for _, env := range envs {
		if scope.CanAccessEnv(app.ID, env.ID) {
			visible = append(visible, env)
		}
	}
	return visible, nil
}

// ByName resolves one environment the scope may access.
func (s *EnvironmentService) ByName(ctx context.Context, scope AuthScope, appName, envName string) (*models.Environment, error) {
	ctx = ensureContext(ctx)

	app, err := s.apps.ByName(ctx, scope, appName)
	if err != nil {
		return nil, err
	}

	var env models.Environment
	err = s.db.WithContext(ctx).
		First(&env, "app_id = ? AND name = ?", app.ID, strings.TrimSpace(envName)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("No such environment")
	}
	if err != nil {
		return nil, fmt.Errorf("environment service: load environment: %w", err)
	}

	if !scope.CanAccessEnv(app.ID, env.ID) {
		return nil, apperrors.NewNotFound("No such environment")
	}

	return &env, nil
}

// Create adds an environment to an app and extends the creator's permission
// to cover it.
func (s *EnvironmentService) Create(ctx context.Context, scope AuthScope, appName, envName string) (*models.Environment, error) {
	ctx = ensureContext(ctx)

	envName = strings.TrimSpace(envName)
	if envName == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	app, err := s.apps.ByName(ctx, scope, appName)
	if err != nil {
		return nil, err
	}

	env := &models.Environment{AppID: app.ID, Name: envName}
	if err := s.db.WithContext(ctx).Create(env).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEnvironmentExists
		}
		return nil, fmt.Errorf("environment service: create environment: %w", err)
	}

	if err := s.perms.EnsureForEnv(ctx, scope.User.ID, app.ID, env.ID); err != nil {
		return nil, err
	}

	return env, nil
}

// SetValue creates or updates one variable in an environment.
func (s *EnvironmentService) SetValue(ctx context.Context, scope AuthScope, appName, envName, key, value string) (*models.Environment, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(key) == "" {
		return nil, apperrors.NewBadRequest("A key is required")
	}
	if value == "" {
		return nil, apperrors.NewBadRequest("A value is required")
	}

	env, err := s.ByName(ctx, scope, appName, envName)
	if err != nil {
		return nil, err
	}

	values := env.Values.Data()
	if values == nil {
		values = make(map[string]string)
	}
	values[key] = value
	env.Values = datatypes.NewJSONType(values)

	if err := s.db.WithContext(ctx).
		Model(env).
		Update("values", env.Values).Error; err != nil {
		return nil, fmt.Errorf("environment service: store value: %w", err)
	}

	return env, nil
}

// DotenvExport renders an environment's values as KEY=VALUE lines with keys
// sorted, suitable for piping straight into a .env file.
func (s *EnvironmentService) DotenvExport(ctx context.Context, scope AuthScope, appName, envName string) (string, error) {
	env, err := s.ByName(ensureContext(ctx), scope, appName, envName)
	if err != nil {
		return "", err
	}

	values := env.Values.Data()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values[key])
	}
	return strings.Join(lines, "\n"), nil
}
