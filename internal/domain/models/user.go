package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an identity account stored in the users table.
// Partition and row key are both the user ID.
type User struct {
	ID                   string    `json:"id" table:"Id"`
	UserName             string    `json:"username" table:"UserName"`
	PasswordHash         string    `json:"-" table:"PasswordHash"`
	SecurityStamp        string    `json:"-" table:"SecurityStamp"`
	Email                string    `json:"email,omitempty" table:"Email"`
	EmailConfirmed       bool      `json:"email_confirmed" table:"EmailConfirmed"`
	PhoneNumber          string    `json:"phone_number,omitempty" table:"PhoneNumber"`
	PhoneNumberConfirmed bool      `json:"phone_number_confirmed" table:"PhoneNumberConfirmed"`
	TwoFactorEnabled     bool      `json:"two_factor_enabled" table:"TwoFactorEnabled"`
	LockoutEndDateUtc    time.Time `json:"lockout_end_date_utc" table:"LockoutEndDateUtc"`
	LockoutEnabled       bool      `json:"lockout_enabled" table:"LockoutEnabled"`
	AccessFailedCount    int       `json:"access_failed_count" table:"AccessFailedCount"`

	// ETag is the version of the row this value was read from. It is not
	// persisted as a property; Update and Delete send it as their precondition.
	ETag string `json:"-" table:"-"`

	// Logins are external logins to attach when the user is created.
	Logins []UserLogin `json:"logins,omitempty" table:"-"`
}

// NewUser builds a user with a fresh ID. The ID never changes afterwards.
func NewUser(username string) *User {
	return &User{
		ID:       uuid.NewString(),
		UserName: username,
	}
}

// HasPassword reports whether a password hash is set.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsLockedOut reports whether the lockout end date lies after now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEndDateUtc.After(now)
}
