package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/envault/envault/internal/app"
	"github.com/envault/envault/internal/database"
)

func openRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func testConfig() *app.Config {
	return &app.Config{
		Server: app.ServerConfig{
			Port: 8000,
			RateLimit: app.RateLimitConfig{
				Requests: 1000,
				Window:   time.Minute,
			},
		},
		Security: app.SecurityConfig{BcryptCost: 4},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
}

type routerClient struct {
	t      *testing.T
	router *gin.Engine
}

func (rc *routerClient) do(method, path, key string, body any) *httptest.ResponseRecorder {
	rc.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(rc.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	w := httptest.NewRecorder()
	rc.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "response was not successful: %s", w.Body.String())
	return envelope.Data
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(openRouterTestDB(t), testConfig())
	require.NoError(t, err)
	rc := &routerClient{t: t, router: router}

	w := rc.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = rc.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// No API key
	w = rc.do(http.MethodGet, "/api/apps", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = rc.do(http.MethodPost, "/api/invites", "", gin.H{"app": "a", "environment": "e"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterFullFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(openRouterTestDB(t), testConfig())
	require.NoError(t, err)
	rc := &routerClient{t: t, router: router}

	// Sign up and obtain an API key.
	w := rc.do(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "Owner@Example.com",
		"password": "owner-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	user := decodeData(t, w)["user"].(map[string]any)
	require.Equal(t, "owner@example.com", user["email"])

	w = rc.do(http.MethodPost, "/api/users/owner@example.com/keys", "", gin.H{
		"password": "owner-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	key := decodeData(t, w)["key"].(string)
	require.NotEmpty(t, key)

	// Wrong password must not issue a key.
	w = rc.do(http.MethodPost, "/api/users/owner@example.com/keys", "", gin.H{
		"password": "not-the-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Create an app; default environments come with it.
	w = rc.do(http.MethodPost, "/api/apps", key, gin.H{"name": "billing"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = rc.do(http.MethodGet, "/api/apps", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	apps := decodeData(t, w)["apps"].([]any)
	require.Equal(t, []any{"billing"}, apps)

	w = rc.do(http.MethodGet, "/api/apps/billing/envs", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	envs := decodeData(t, w)["environments"].([]any)
	require.Len(t, envs, 3)

	// Store values and export them as dotenv.
	w = rc.do(http.MethodPost, "/api/apps/billing/envs/production", key, gin.H{
		"key": "DATABASE_URL", "value": "postgres://db/billing",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = rc.do(http.MethodPost, "/api/apps/billing/envs/production", key, gin.H{
		"key": "API_TOKEN", "value": "tok-123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = rc.do(http.MethodGet, "/api/apps/billing/envs/production/export", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "API_TOKEN=tok-123\nDATABASE_URL=postgres://db/billing", w.Body.String())

	// Invite a second user into production.
	w = rc.do(http.MethodPost, "/api/invites", key, gin.H{
		"email":       "dev@example.com",
		"app":         "billing",
		"environment": "production",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	token := decodeData(t, w)["token"].(string)
	require.Len(t, token, 10)

	w = rc.do(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "dev@example.com",
		"password": "dev-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = rc.do(http.MethodPost, "/api/users/dev@example.com/keys", "", gin.H{
		"password": "dev-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	devKey := decodeData(t, w)["key"].(string)

	// Before redemption the app is invisible to the second user.
	w = rc.do(http.MethodGet, "/api/apps/billing", devKey, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = rc.do(http.MethodPost, "/api/invites/redeem", devKey, gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code)

	w = rc.do(http.MethodGet, "/api/apps/billing/envs/production/export", devKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "DATABASE_URL=")

	// Single use: the same token cannot be redeemed twice.
	w = rc.do(http.MethodPost, "/api/invites/redeem", devKey, gin.H{"token": token})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterKeyRotationOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(openRouterTestDB(t), testConfig())
	require.NoError(t, err)
	rc := &routerClient{t: t, router: router}

	w := rc.do(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "rotate@example.com",
		"password": "rotate-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = rc.do(http.MethodPost, "/api/users/rotate@example.com/keys", "", gin.H{
		"password": "rotate-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	firstKey := decodeData(t, w)["key"].(string)

	w = rc.do(http.MethodPost, "/api/users/rotate@example.com/keys", "", gin.H{
		"password": "rotate-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	secondKey := decodeData(t, w)["key"].(string)
	require.NotEqual(t, firstKey, secondKey)

	// The old key stops working the moment a new one is issued.
	w = rc.do(http.MethodGet, "/api/apps", firstKey, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = rc.do(http.MethodGet, "/api/apps", secondKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
