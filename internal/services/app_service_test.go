package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/envault/envault/pkg/errors"
)

func TestAppServiceCreateProvisionsDefaults(t *testing.T) {
	db := openTestDB(t)
	users, perms, _ := newTestServices(t, db)
	apps, err := NewAppService(db)
	require.NoError(t, err)

	user := seedUser(t, users, "owner@example.com")

	app, err := apps.Create(context.Background(), user.ID, "acme")
	require.NoError(t, err)
	require.NotEmpty(t, app.ID)

	scope := scopeFor(t, perms, users, user.ID)
	require.True(t, scope.CanAccessApp(app.ID))

	envs, err := NewEnvironmentService(db, apps, perms)
	require.NoError(t, err)

	list, err := envs.ForApp(context.Background(), scope, "acme")
	require.NoError(t, err)
	require.Len(t, list, 3)

	names := make([]string, 0, len(list))
	for _, env := range list {
		names = append(names, env.Name)
		require.True(t, scope.CanAccessEnv(app.ID, env.ID), "creator must hold every default environment")
	}
	require.ElementsMatch(t, []string{"production", "staging", "development"}, names)
}

func TestAppServiceCreateDuplicateName(t *testing.T) {
	db := openTestDB(t)
	users, _, _ := newTestServices(t, db)
	apps, err := NewAppService(db)
	require.NoError(t, err)

	user := seedUser(t, users, "owner@example.com")

	_, err = apps.Create(context.Background(), user.ID, "acme")
	require.NoError(t, err)

	_, err = apps.Create(context.Background(), user.ID, "acme")
	require.ErrorIs(t, err, ErrAppExists)
}

func TestAppServiceScopeIsolation(t *testing.T) {
	db := openTestDB(t)
	users, perms, _ := newTestServices(t, db)
	apps, err := NewAppService(db)
	require.NoError(t, err)

	owner := seedUser(t, users, "owner@example.com")
	outsider := seedUser(t, users, "outsider@example.com")

	app, err := apps.Create(context.Background(), owner.ID, "acme")
	require.NoError(t, err)

	ownerScope := scopeFor(t, perms, users, owner.ID)
	outsiderScope := scopeFor(t, perms, users, outsider.ID)

	visible, err := apps.ForScope(context.Background(), ownerScope)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	hidden, err := apps.ForScope(context.Background(), outsiderScope)
	require.NoError(t, err)
	require.Empty(t, hidden)

	// an app outside the scope reads as missing, not forbidden
	_, err = apps.ByName(context.Background(), outsiderScope, "acme")
	require.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)

	found, err := apps.ByName(context.Background(), ownerScope, "acme")
	require.NoError(t, err)
	require.Equal(t, app.ID, found.ID)
}

func scopeFor(t *testing.T, perms *PermissionService, users *UserService, userID string) AuthScope {
	t.Helper()

	list, err := perms.ForUser(context.Background(), userID)
	require.NoError(t, err)

	var scope AuthScope
	scope.Permissions = list

	err = users.db.First(&scope.User, "id = ?", userID).Error
	require.NoError(t, err)

	return scope
}
