package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/domain/models"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 1000
)

// UserHandler handles user HTTP requests
type UserHandler struct {
	userService *service.UserService
	now         func() time.Time
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
		now:         time.Now,
	}
}

// CreateUser registers a user
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	logins := make([]models.LoginInfo, 0, len(req.Logins))
	for _, l := range req.Logins {
		logins = append(logins, l.Login())
	}
	user, err := h.userService.Register(c.Request.Context(), service.RegisterRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Logins:      logins,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewUserInfo(user, h.now()))
}

// GetUser returns the profile of a user: the user with roles, claims and logins
func (h *UserHandler) GetUser(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserProfile(profile, h.now()))
}

// LookupUser finds a user by exactly one of username, email or provider+key
func (h *UserHandler) LookupUser(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		user *models.User
		err  error
	)
	switch {
	case c.Query("username") != "":
		user, err = h.userService.GetUserByUsername(ctx, c.Query("username"))
	case c.Query("email") != "":
		user, err = h.userService.GetUserByEmail(ctx, c.Query("email"))
	case c.Query("provider") != "" && c.Query("key") != "":
		user, err = h.userService.GetUserByLogin(ctx, models.LoginInfo{
			LoginProvider: c.Query("provider"),
			ProviderKey:   c.Query("key"),
		})
	default:
		badRequest(c, "one of username, email or provider and key is required")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserInfo(user, h.now()))
}

// SearchUsers lists usernames starting with the prefix query parameter
func (h *UserHandler) SearchUsers(c *gin.Context) {
	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}

	names, err := h.userService.SearchUsernames(c.Request.Context(), c.Query("prefix"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, dto.SearchUsersResponse{Usernames: names, Total: len(names)})
}

// UpdateUser applies a partial profile update
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), c.Param("id"), service.UpdateProfileRequest{
		Email:                req.Email,
		EmailConfirmed:       req.EmailConfirmed,
		PhoneNumber:          req.PhoneNumber,
		PhoneNumberConfirmed: req.PhoneNumberConfirmed,
		TwoFactorEnabled:     req.TwoFactorEnabled,
		LockoutEnabled:       req.LockoutEnabled,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserInfo(user, h.now()))
}

// DeleteUser deletes a user with its roles, claims, logins and index rows
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnlockUser lifts a lockout
func (h *UserHandler) UnlockUser(c *gin.Context) {
	user, err := h.userService.Unlock(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserInfo(user, h.now()))
}

// ResetPassword sets a new password without the current one
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.userService.ResetPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
