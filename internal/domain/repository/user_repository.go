package repository

import (
	"context"
	"time"

	"github.com/bravo68web/tableidentity/internal/domain/models"
)

// UserLookup resolves users through the primary table or a secondary index.
// Every Find method returns (nil, nil) when nothing matches.
type UserLookup interface {
	// FindByID reads the user row directly
	FindByID(ctx context.Context, userID string) (*models.User, error)

	// FindByUsername resolves the username index, then the user row
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// FindByEmail resolves the email index, then the user row
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByLogin resolves the login provider-key index, then the user row
	FindByLogin(ctx context.Context, login models.LoginInfo) (*models.User, error)

	// SearchUsernames lists usernames starting with prefix, in order
	SearchUsernames(ctx context.Context, prefix string, limit int) ([]string, error)
}

// UserWriter creates, updates and deletes users together with their index rows.
type UserWriter interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, user *models.User) error

	// ChangeEmail moves the email index entry and persists the new address
	ChangeEmail(ctx context.Context, user *models.User, email string) error
}

// CredentialStore manages the password hash and security stamp of a user.
// Setters change the value in memory; Update persists it.
type CredentialStore interface {
	GetPasswordHash(ctx context.Context, user *models.User) (string, error)
	SetPasswordHash(ctx context.Context, user *models.User, hash string) error
	HasPassword(ctx context.Context, user *models.User) (bool, error)
	GetSecurityStamp(ctx context.Context, user *models.User) (string, error)
	SetSecurityStamp(ctx context.Context, user *models.User, stamp string) error
}

// ClaimStore manages claim rows. A user holds at most one claim per type.
type ClaimStore interface {
	GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error)
	AddClaim(ctx context.Context, user *models.User, claim models.Claim) error
	RemoveClaim(ctx context.Context, user *models.User, claim models.Claim) error
}

// RoleStore manages role membership rows.
type RoleStore interface {
	AddToRole(ctx context.Context, user *models.User, role string) error
	RemoveFromRole(ctx context.Context, user *models.User, role string) error
	GetRoles(ctx context.Context, user *models.User) ([]string, error)
	IsInRole(ctx context.Context, user *models.User, role string) (bool, error)
}

// LoginStore manages external login rows and their provider-key index rows.
type LoginStore interface {
	AddLogin(ctx context.Context, user *models.User, login models.LoginInfo) error
	RemoveLogin(ctx context.Context, user *models.User, login models.LoginInfo) error
	GetLogins(ctx context.Context, user *models.User) ([]models.LoginInfo, error)
}

// LockoutStore manages lockout state. Setters change the value in memory;
// Update persists it.
type LockoutStore interface {
	GetLockoutEndDate(ctx context.Context, user *models.User) (time.Time, error)
	SetLockoutEndDate(ctx context.Context, user *models.User, end time.Time) error
	IncrementAccessFailedCount(ctx context.Context, user *models.User) (int, error)
	ResetAccessFailedCount(ctx context.Context, user *models.User) error
	GetAccessFailedCount(ctx context.Context, user *models.User) (int, error)
	GetLockoutEnabled(ctx context.Context, user *models.User) (bool, error)
	SetLockoutEnabled(ctx context.Context, user *models.User, enabled bool) error
}

// ProfileStore manages email, phone number and two-factor settings.
// Setters change the value in memory; Update persists it.
type ProfileStore interface {
	GetEmail(ctx context.Context, user *models.User) (string, error)
	SetEmail(ctx context.Context, user *models.User, email string) error
	GetEmailConfirmed(ctx context.Context, user *models.User) (bool, error)
	SetEmailConfirmed(ctx context.Context, user *models.User, confirmed bool) error
	GetPhoneNumber(ctx context.Context, user *models.User) (string, error)
	SetPhoneNumber(ctx context.Context, user *models.User, phone string) error
	GetPhoneNumberConfirmed(ctx context.Context, user *models.User) (bool, error)
	SetPhoneNumberConfirmed(ctx context.Context, user *models.User, confirmed bool) error
	GetTwoFactorEnabled(ctx context.Context, user *models.User) (bool, error)
	SetTwoFactorEnabled(ctx context.Context, user *models.User, enabled bool) error
}

// UserStore is the full set of capabilities the identity store implements.
type UserStore interface {
	UserLookup
	UserWriter
	CredentialStore
	ClaimStore
	RoleStore
	LoginStore
	LockoutStore
	ProfileStore

	// Hydrate loads every child row of user
	Hydrate(ctx context.Context, user *models.User) (*models.HydratedUser, error)
}
