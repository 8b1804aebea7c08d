package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/envault/envault/internal/app"
	"github.com/envault/envault/internal/handlers"
	"github.com/envault/envault/internal/middleware"
	"github.com/envault/envault/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	users, err := services.NewUserService(db, services.WithBcryptCost(cfg.Security.BcryptCost))
	if err != nil {
		return nil, err
	}
	perms, err := services.NewPermissionService(db)
	if err != nil {
		return nil, err
	}
	invites, err := services.NewInviteService(db, perms, services.WithInviteBcryptCost(cfg.Security.BcryptCost))
	if err != nil {
		return nil, err
	}
	apps, err := services.NewAppService(db)
	if err != nil {
		return nil, err
	}
	envs, err := services.NewEnvironmentService(db, apps, perms)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	userHandler := handlers.NewUserHandler(users)
	appHandler := handlers.NewAppHandler(apps)
	envHandler := handlers.NewEnvironmentHandler(envs)
	inviteHandler := handlers.NewInviteHandler(invites, envs)

	// Public routes: account creation and key issuance authenticate with the
	// account password, not an API key.
	r.POST("/api/signup", userHandler.SignUp)
	r.POST("/api/users/:email/keys", userHandler.CreateKey)

	// Everything else requires a valid API key.
	authed := r.Group("/api")
	authed.Use(middleware.APIKeyAuth(users, perms))

	appGroup := authed.Group("/apps")
	{
		appGroup.GET("", appHandler.List)
		appGroup.POST("", appHandler.Create)
		appGroup.GET("/:app_name", appHandler.Get)

		appGroup.GET("/:app_name/envs", envHandler.List)
		appGroup.POST("/:app_name/envs", envHandler.Create)
		appGroup.GET("/:app_name/envs/:env_name", envHandler.Get)
		appGroup.POST("/:app_name/envs/:env_name", envHandler.SetValue)
		appGroup.GET("/:app_name/envs/:env_name/export", envHandler.Export)
		appGroup.GET("/:app_name/envs/:env_name/invites", inviteHandler.ForEnv)
	}

	authed.POST("/invites", inviteHandler.Create)
	authed.POST("/invites/redeem", inviteHandler.Redeem)

	return r, nil
}
