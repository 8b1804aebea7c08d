package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/internal/middleware"
	"github.com/envault/envault/internal/services"
	appErrors "github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/response"
)

// EnvironmentHandler serves environment CRUD and variable endpoints.
type EnvironmentHandler struct {
	envs *services.EnvironmentService
}

func NewEnvironmentHandler(envs *services.EnvironmentService) *EnvironmentHandler {
	return &EnvironmentHandler{envs: envs}
}

type createEnvRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

type setValueRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// GET /api/apps/:app_name/envs
func (h *EnvironmentHandler) List(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	envs, err := h.envs.ForApp(requestContext(c), scope, c.Param("app_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	names := make([]string, 0, len(envs))
	for _, env := range envs {
		names = append(names, env.Name)
	}

	response.Success(c, http.StatusOK, gin.H{"environments": names})
}

// POST /api/apps/:app_name/envs
func (h *EnvironmentHandler) Create(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createEnvRequest
	if !bindAndValidate(c, &req) {
		return
	}

	env, err := h.envs.Create(requestContext(c), scope, c.Param("app_name"), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"environment": gin.H{"id": env.ID, "name": env.Name},
	})
}

// GET /api/apps/:app_name/envs/:env_name
func (h *EnvironmentHandler) Get(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	env, err := h.envs.ByName(requestContext(c), scope, c.Param("app_name"), c.Param("env_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	values := env.Values.Data()
	if values == nil {
		values = map[string]string{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"name":   env.Name,
		"values": values,
	})
}

// POST /api/apps/:app_name/envs/:env_name
func (h *EnvironmentHandler) SetValue(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req setValueRequest
	if !bindAndValidate(c, &req) {
		return
	}

	env, err := h.envs.SetValue(requestContext(c), scope, c.Param("app_name"), c.Param("env_name"), req.Key, req.Value)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"name":   env.Name,
		"values": env.Values.Data(),
	})
}

// GET /api/apps/:app_name/envs/:env_name/export
//
// Plain-text dotenv rendering for piping straight into tooling.
func (h *EnvironmentHandler) Export(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	out, err := h.envs.DotenvExport(requestContext(c), scope, c.Param("app_name"), c.Param("env_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.String(http.StatusOK, out)
}
