package models

import "github.com/google/uuid"

// UserRole is a role membership row, keyed by user ID and encoded role name.
type UserRole struct {
	ID     string `json:"id" table:"Id"`
	Name   string `json:"name" table:"Name"`
	UserID string `json:"user_id" table:"UserId"`
}

// NewUserRole builds a membership with a fresh row ID.
func NewUserRole(userID, name string) *UserRole {
	return &UserRole{ID: uuid.NewString(), Name: name, UserID: userID}
}
