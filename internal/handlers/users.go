package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/internal/services"
	"github.com/envault/envault/pkg/metrics"
	"github.com/envault/envault/pkg/response"
)

// UserHandler manages signup and API key issuance.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// POST /api/signup
//
// The initial API key generated at signup is discarded server-side; the
// client must hit the keys endpoint to obtain one in cleartext.
func (h *UserHandler) SignUp(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user": userDTO{ID: user.ID, Email: user.Email},
	})
}

type createKeyRequest struct {
	Password string `json:"password" validate:"required"`
}

// POST /api/users/:email/keys
//
// Re-authenticates with the password and rotates the API key. The plaintext
// key appears in this response and nowhere else; the previous key stops
// working immediately.
func (h *UserHandler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.Authenticate(ctx, c.Param("email"), req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	key, _, err := h.users.RotateKey(ctx, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.KeyRotations.Inc()

	response.Success(c, http.StatusCreated, gin.H{"key": key})
}
