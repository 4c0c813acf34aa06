package dto

import (
	"time"

	"github.com/bravo68web/tableidentity/internal/domain/models"
)

// UserInfo represents a user in responses. Password hash and security stamp
// are never returned.
type UserInfo struct {
	ID                   string     `json:"id"`
	Username             string     `json:"username"`
	Email                string     `json:"email,omitempty"`
	EmailConfirmed       bool       `json:"email_confirmed"`
	PhoneNumber          string     `json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool       `json:"phone_number_confirmed"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	HasPassword          bool       `json:"has_password"`
	LockoutEnabled       bool       `json:"lockout_enabled"`
	LockoutEnd           *time.Time `json:"lockout_end,omitempty"`
	AccessFailedCount    int        `json:"access_failed_count"`
}

// NewUserInfo converts a user model to its response form
func NewUserInfo(u *models.User, now time.Time) UserInfo {
	info := UserInfo{
		ID:                   u.ID,
		Username:             u.UserName,
		Email:                u.Email,
		EmailConfirmed:       u.EmailConfirmed,
		PhoneNumber:          u.PhoneNumber,
		PhoneNumberConfirmed: u.PhoneNumberConfirmed,
		TwoFactorEnabled:     u.TwoFactorEnabled,
		HasPassword:          u.HasPassword(),
		LockoutEnabled:       u.LockoutEnabled,
		AccessFailedCount:    u.AccessFailedCount,
	}
	if u.LockoutEndDateUtc.After(now) {
		end := u.LockoutEndDateUtc
		info.LockoutEnd = &end
	}
	return info
}

// UserProfile is a user with roles, claims and external logins
type UserProfile struct {
	User   UserInfo    `json:"user"`
	Roles  []string    `json:"roles"`
	Claims []ClaimInfo `json:"claims"`
	Logins []LoginInfo `json:"logins"`
}

// NewUserProfile converts a hydrated user to its response form
func NewUserProfile(h *models.HydratedUser, now time.Time) UserProfile {
	p := UserProfile{
		User:   NewUserInfo(h.User, now),
		Roles:  h.Roles,
		Claims: make([]ClaimInfo, 0, len(h.Claims)),
		Logins: make([]LoginInfo, 0, len(h.Logins)),
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	for _, c := range h.Claims {
		p.Claims = append(p.Claims, ClaimInfo{Type: c.Type, Value: c.Value})
	}
	for _, l := range h.Logins {
		p.Logins = append(p.Logins, LoginInfo{Provider: l.LoginProvider, Key: l.ProviderKey})
	}
	return p
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username    string      `json:"username" binding:"required"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	PhoneNumber string      `json:"phone_number"`
	Logins      []LoginInfo `json:"logins"`
}

// UpdateUserRequest represents a partial profile update. Omitted fields are
// left unchanged.
type UpdateUserRequest struct {
	Email                *string `json:"email"`
	EmailConfirmed       *bool   `json:"email_confirmed"`
	PhoneNumber          *string `json:"phone_number"`
	PhoneNumberConfirmed *bool   `json:"phone_number_confirmed"`
	TwoFactorEnabled     *bool   `json:"two_factor_enabled"`
	LockoutEnabled       *bool   `json:"lockout_enabled"`
}

// SearchUsersResponse lists usernames matching a prefix
type SearchUsersResponse struct {
	Usernames []string `json:"usernames"`
	Total     int      `json:"total"`
}

// ResetPasswordRequest sets a new password without the current one
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest replaces the password of the signed-in user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// RoleRequest names a role
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// RolesResponse lists the roles of a user
type RolesResponse struct {
	Roles []string `json:"roles"`
}

// ClaimInfo is a claim type and value
type ClaimInfo struct {
	Type  string `json:"type" binding:"required"`
	Value string `json:"value"`
}

// Claim converts the DTO to a model claim
func (c ClaimInfo) Claim() models.Claim {
	return models.Claim{Type: c.Type, Value: c.Value}
}

// LoginInfo is an external login provider and key
type LoginInfo struct {
	Provider string `json:"provider" binding:"required"`
	Key      string `json:"key" binding:"required"`
}

// Login converts the DTO to a model login
func (l LoginInfo) Login() models.LoginInfo {
	return models.LoginInfo{LoginProvider: l.Provider, ProviderKey: l.Key}
}
