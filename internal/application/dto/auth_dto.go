package dto

import "time"

// LoginRequest represents a username and password sign-in
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a sign-in response with a session token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
	Admin     bool      `json:"admin"`
}

// PasswordCheckResponse reports the outcome of a password check
type PasswordCheckResponse struct {
	Valid bool     `json:"valid"`
	User  UserInfo `json:"user"`
}
