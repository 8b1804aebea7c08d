package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/internal/middleware"
	"github.com/envault/envault/internal/services"
	appErrors "github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/response"
)

// AppHandler serves the app listing and creation endpoints.
type AppHandler struct {
	apps *services.AppService
}

func NewAppHandler(apps *services.AppService) *AppHandler {
	return &AppHandler{apps: apps}
}

type createAppRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

// GET /api/apps
func (h *AppHandler) List(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	apps, err := h.apps.ForScope(requestContext(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}

	names := make([]string, 0, len(apps))
	for _, app := range apps {
		names = append(names, app.Name)
	}

	response.Success(c, http.StatusOK, gin.H{"apps": names})
}

// POST /api/apps
func (h *AppHandler) Create(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createAppRequest
	if !bindAndValidate(c, &req) {
		return
	}

	app, err := h.apps.Create(requestContext(c), scope.User.ID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"app": gin.H{"id": app.ID, "name": app.Name},
	})
}

// GET /api/apps/:app_name
func (h *AppHandler) Get(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	app, err := h.apps.ByName(requestContext(c), scope, c.Param("app_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"app": gin.H{"id": app.ID, "name": app.Name},
	})
}
