package handlers_test

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

	"github.com/envault/envault/internal/api"
	"github.com/envault/envault/internal/app"
	"github.com/envault/envault/internal/database"
	"github.com/envault/envault/pkg/response"
)

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		},
		Security: app.SecurityConfig{BcryptCost: 4},
	}

	router, err := api.NewRouter(db, cfg)
	require.NoError(t, err)

	return &testEnv{t: t, router: router, db: db}
}

func (env *testEnv) request(method, path, key string, body any) *httptest.ResponseRecorder {
	env.t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(env.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func (env *testEnv) signupWithKey(email, password string) string {
	env.t.Helper()

	w := env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    email,
		"password": password,
	})
	require.Equal(env.t, http.StatusCreated, w.Code, w.Body.String())

	w = env.request(http.MethodPost, "/api/users/"+email+"/keys", "", gin.H{
		"password": password,
	})
	require.Equal(env.t, http.StatusCreated, w.Code, w.Body.String())

	data := decodeEnvelope(env.t, w).Data.(map[string]any)
	return data["key"].(string)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "not-an-email",
		"password": "long-enough-pass",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	require.False(t, envelope.Success)
	require.Equal(t, "BAD_REQUEST", envelope.Error.Code)
	require.Contains(t, envelope.Error.Message, "email")

	w = env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "short@example.com",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed JSON body
	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "dupe@example.com",
		"password": "dupe-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Same address with different casing maps to the same account.
	w = env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "Dupe@Example.com",
		"password": "other-password",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "DUPLICATE_EMAIL", decodeEnvelope(t, w).Error.Code)
}

func TestCreateKeyUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/users/ghost@example.com/keys", "", gin.H{
		"password": "whatever-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, w).Error.Code)
}

func TestCreateKeyStorageFailureIsNotUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/signup", "", gin.H{
		"email":    "stored@example.com",
		"password": "stored-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// With the store gone the lookup fails outright; that is a server-side
	// fault, not a credential mismatch.
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = env.request(http.MethodPost, "/api/users/stored@example.com/keys", "", gin.H{
		"password": "stored-password",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "INTERNAL_SERVER_ERROR", decodeEnvelope(t, w).Error.Code)
}

func TestInviteOutsideScope(t *testing.T) {
	env := newTestEnv(t)

	ownerKey := env.signupWithKey("owner@example.com", "owner-password")
	outsiderKey := env.signupWithKey("outsider@example.com", "outsider-password")

	w := env.request(http.MethodPost, "/api/apps", ownerKey, gin.H{"name": "payments"})
	require.Equal(t, http.StatusCreated, w.Code)

	// A member without access to the app cannot mint invites into it; the
	// app reads as missing rather than forbidden.
	w = env.request(http.MethodPost, "/api/invites", outsiderKey, gin.H{
		"app":         "payments",
		"environment": "production",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", decodeEnvelope(t, w).Error.Code)

	// Unknown environment within an accessible app is also a 404.
	w = env.request(http.MethodPost, "/api/invites", ownerKey, gin.H{
		"app":         "payments",
		"environment": "qa",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedeemRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	key := env.signupWithKey("redeemer@example.com", "redeemer-password")

	for _, token := range []string{"short", "waytoolongtoken", "aaaaabbbbb"} {
		w := env.request(http.MethodPost, "/api/invites/redeem", key, gin.H{"token": token})
		require.Equal(t, http.StatusUnauthorized, w.Code, "token %q", token)
		require.Equal(t, "INVALID_INVITE", decodeEnvelope(t, w).Error.Code)
	}
}

func TestInviteListForEnvironment(t *testing.T) {
	env := newTestEnv(t)

	key := env.signupWithKey("lister@example.com", "lister-password")

	w := env.request(http.MethodPost, "/api/apps", key, gin.H{"name": "search"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(http.MethodPost, "/api/invites", key, gin.H{
		"email":       "teammate@example.com",
		"app":         "search",
		"environment": "staging",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(http.MethodGet, "/api/apps/search/envs/staging/invites", key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeEnvelope(t, w).Data.(map[string]any)
	invites := data["invites"].([]any)
	require.Len(t, invites, 1)

	invite := invites[0].(map[string]any)
	require.Equal(t, "teammate@example.com", invite["email"])
	require.Equal(t, "staging", invite["environment"])
	require.Equal(t, "pending", invite["status"])
	// The token never appears in listings.
	require.NotContains(t, invite, "token")

	// Production has no invites.
	w = env.request(http.MethodGet, "/api/apps/search/envs/production/invites", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w).Data.(map[string]any)
	require.Empty(t, data["invites"])
}

func TestEnvironmentValueValidation(t *testing.T) {
	env := newTestEnv(t)

	key := env.signupWithKey("values@example.com", "values-password")

	w := env.request(http.MethodPost, "/api/apps", key, gin.H{"name": "worker"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(http.MethodPost, "/api/apps/worker/envs/production", key, gin.H{
		"key": "", "value": "v",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(http.MethodPost, "/api/apps/worker/envs/production", key, gin.H{
		"key": "ONLY_KEY",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
