package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/internal/middleware"
	"github.com/envault/envault/internal/models"
	"github.com/envault/envault/internal/services"
	appErrors "github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/metrics"
	"github.com/envault/envault/pkg/response"
)

// InviteHandler issues and redeems environment invites.
type InviteHandler struct {
	invites *services.InviteService
	envs    *services.EnvironmentService
}

func NewInviteHandler(invites *services.InviteService, envs *services.EnvironmentService) *InviteHandler {
	return &InviteHandler{invites: invites, envs: envs}
}

type createInviteRequest struct {
	Email       string `json:"email" validate:"omitempty,email"`
	App         string `json:"app" validate:"required"`
	Environment string `json:"environment" validate:"required"`
}

type redeemInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

type inviteDTO struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	Environment string    `json:"environment"`
	Email       string    `json:"email,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// POST /api/invites
//
// Only a member who can already access the target environment may invite
// someone into it. The plaintext token appears in this response and nowhere
// else; delivery to the recipient is out of band.
func (h *InviteHandler) Create(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	// scope-checked resolution: apps or environments outside the caller's
	// grant read as missing
	env, err := h.envs.ByName(ctx, scope, req.App, req.Environment)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, invite, err := h.invites.Create(ctx, services.CreateInviteInput{
		Email:       req.Email,
		AppID:       env.AppID,
		Environment: env.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":  token,
		"invite": toInviteDTO(invite),
	})
}

// POST /api/invites/redeem
func (h *InviteHandler) Redeem(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req redeemInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user := scope.User
	if err := h.invites.Redeem(requestContext(c), &user, req.Token); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrInvalidInvite.Code {
			metrics.InviteRedemptions.WithLabelValues("invalid").Inc()
		} else {
			metrics.InviteRedemptions.WithLabelValues("error").Inc()
		}
		response.Error(c, err)
		return
	}

	metrics.InviteRedemptions.WithLabelValues("success").Inc()

	response.Success(c, http.StatusOK, gin.H{"message": "invite redeemed"})
}

// GET /api/apps/:app_name/envs/:env_name/invites
func (h *InviteHandler) ForEnv(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)

	env, err := h.envs.ByName(ctx, scope, c.Param("app_name"), c.Param("env_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	invites, err := h.invites.ForEnv(ctx, env.AppID, env.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]inviteDTO, 0, len(invites))
	for i := range invites {
		dtos = append(dtos, toInviteDTO(&invites[i]))
	}

	response.Success(c, http.StatusOK, gin.H{"invites": dtos})
}

func toInviteDTO(invite *models.Invite) inviteDTO {
	return inviteDTO{
		ID:          invite.ID,
		AppID:       invite.AppID,
		Environment: invite.Environment,
		Email:       invite.Email,
		Status:      invite.Status(),
		CreatedAt:   invite.CreatedAt,
	}
}
