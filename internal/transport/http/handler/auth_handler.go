package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/transport/http/middleware"
)

// AuthHandler handles sign-in and the signed-in user's own account
type AuthHandler struct {
	sessions    *service.SessionService
	userService *service.UserService
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(sessions *service.SessionService, userService *service.UserService) *AuthHandler {
	return &AuthHandler{sessions: sessions, userService: userService}
}

// Login exchanges a username and password for a session token
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := h.sessions.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      dto.NewUserInfo(session.User, time.Now()),
		Admin:     session.Admin,
	})
}

// CheckPassword verifies a password without issuing a session. Failed checks
// count towards the lockout like failed sign-ins.
func (h *AuthHandler) CheckPassword(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.userService.CheckPassword(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PasswordCheckResponse{Valid: true, User: dto.NewUserInfo(user, time.Now())})
}

// Me returns the profile of the signed-in user
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.GetUserFromContext(c)
	profile, err := h.userService.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserProfile(profile, time.Now()))
}

// ChangePassword replaces the signed-in user's password. The session used
// for the call is revoked along with every other session of the user.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user := middleware.GetUserFromContext(c)
	if err := h.userService.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
