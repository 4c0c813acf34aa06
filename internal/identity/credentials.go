package identity

import (
	"context"
	"strings"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

// GetPasswordHash returns the stored password hash, empty when none is set.
func (s *Store) GetPasswordHash(_ context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", apperrors.InvalidArgument("user")
	}
	return user.PasswordHash, nil
}

// SetPasswordHash sets the password hash on user. Call Update to persist it.
func (s *Store) SetPasswordHash(_ context.Context, user *models.User, hash string) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if strings.TrimSpace(hash) == "" {
		return apperrors.InvalidArgument("passwordHash")
	}
	user.PasswordHash = hash
	return nil
}

// HasPassword reports whether user has a password hash.
func (s *Store) HasPassword(_ context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, apperrors.InvalidArgument("user")
	}
	return user.HasPassword(), nil
}

// GetSecurityStamp returns the security stamp of user.
func (s *Store) GetSecurityStamp(_ context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", apperrors.InvalidArgument("user")
	}
	return user.SecurityStamp, nil
}

// SetSecurityStamp sets the security stamp on user. Call Update to persist it.
func (s *Store) SetSecurityStamp(_ context.Context, user *models.User, stamp string) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if strings.TrimSpace(stamp) == "" {
		return apperrors.InvalidArgument("stamp")
	}
	user.SecurityStamp = stamp
	return nil
}
