package identity

import (
	"context"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

func (s *Store) GetEmail(_ context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", apperrors.InvalidArgument("user")
	}
	return user.Email, nil
}

// SetEmail changes the email in memory only. The email index keeps the old
// address until the index is rebuilt.
func (s *Store) SetEmail(_ context.Context, user *models.User, email string) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.Email = email
	return nil
}

func (s *Store) GetEmailConfirmed(_ context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, apperrors.InvalidArgument("user")
	}
	return user.EmailConfirmed, nil
}

func (s *Store) SetEmailConfirmed(_ context.Context, user *models.User, confirmed bool) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.EmailConfirmed = confirmed
	return nil
}

func (s *Store) GetPhoneNumber(_ context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", apperrors.InvalidArgument("user")
	}
	return user.PhoneNumber, nil
}

func (s *Store) SetPhoneNumber(_ context.Context, user *models.User, phone string) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.PhoneNumber = phone
	return nil
}

func (s *Store) GetPhoneNumberConfirmed(_ context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, apperrors.InvalidArgument("user")
	}
	return user.PhoneNumberConfirmed, nil
}

func (s *Store) SetPhoneNumberConfirmed(_ context.Context, user *models.User, confirmed bool) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.PhoneNumberConfirmed = confirmed
	return nil
}

func (s *Store) GetTwoFactorEnabled(_ context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, apperrors.InvalidArgument("user")
	}
	return user.TwoFactorEnabled, nil
}

func (s *Store) SetTwoFactorEnabled(_ context.Context, user *models.User, enabled bool) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.TwoFactorEnabled = enabled
	return nil
}
