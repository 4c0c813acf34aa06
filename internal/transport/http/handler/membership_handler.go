package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/domain/models"
)

// MembershipHandler manages the roles, claims and external logins of a user
type MembershipHandler struct {
	userService *service.UserService
}

// NewMembershipHandler creates a new MembershipHandler instance
func NewMembershipHandler(userService *service.UserService) *MembershipHandler {
	return &MembershipHandler{userService: userService}
}

// ListRoles lists the roles of a user
func (h *MembershipHandler) ListRoles(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	roles := profile.Roles
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, dto.RolesResponse{Roles: roles})
}

// AddRole adds a user to a role
func (h *MembershipHandler) AddRole(c *gin.Context) {
	var req dto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.userService.AddToRole(c.Request.Context(), c.Param("id"), req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveRole removes a user from a role
func (h *MembershipHandler) RemoveRole(c *gin.Context) {
	if err := h.userService.RemoveFromRole(c.Request.Context(), c.Param("id"), c.Param("role")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddClaim sets a claim. A claim of the same type is replaced.
func (h *MembershipHandler) AddClaim(c *gin.Context) {
	var req dto.ClaimInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.userService.AddClaim(c.Request.Context(), c.Param("id"), req.Claim()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveClaim removes the claim given by the type and value query parameters
func (h *MembershipHandler) RemoveClaim(c *gin.Context) {
	claim := models.Claim{Type: c.Query("type"), Value: c.Query("value")}
	if claim.Type == "" {
		badRequest(c, "type is required")
		return
	}
	if err := h.userService.RemoveClaim(c.Request.Context(), c.Param("id"), claim); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddLogin binds an external login to a user
func (h *MembershipHandler) AddLogin(c *gin.Context) {
	var req dto.LoginInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.userService.AddLogin(c.Request.Context(), c.Param("id"), req.Login()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveLogin unbinds the login given by the provider and key query parameters
func (h *MembershipHandler) RemoveLogin(c *gin.Context) {
	login := models.LoginInfo{LoginProvider: c.Query("provider"), ProviderKey: c.Query("key")}
	if login.LoginProvider == "" || login.ProviderKey == "" {
		badRequest(c, "provider and key are required")
		return
	}
	if err := h.userService.RemoveLogin(c.Request.Context(), c.Param("id"), login); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
