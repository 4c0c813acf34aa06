package identity

import (
	"context"
	"time"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

// GetLockoutEndDate returns the lockout end of user. tablestore.MinDateTime
// means the user is not locked out.
func (s *Store) GetLockoutEndDate(_ context.Context, user *models.User) (time.Time, error) {
	if user == nil {
		return time.Time{}, apperrors.InvalidArgument("user")
	}
	if user.LockoutEndDateUtc.Before(tablestore.MinDateTime) {
		return tablestore.MinDateTime, nil
	}
	return user.LockoutEndDateUtc, nil
}

// SetLockoutEndDate sets the lockout end, clamped to tablestore.MinDateTime.
func (s *Store) SetLockoutEndDate(_ context.Context, user *models.User, end time.Time) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	end = end.UTC()
	if end.Before(tablestore.MinDateTime) {
		end = tablestore.MinDateTime
	}
	user.LockoutEndDateUtc = end
	return nil
}

// IncrementAccessFailedCount bumps the failed-access counter and returns it.
func (s *Store) IncrementAccessFailedCount(_ context.Context, user *models.User) (int, error) {
	if user == nil {
		return 0, apperrors.InvalidArgument("user")
	}
	user.AccessFailedCount++
	return user.AccessFailedCount, nil
}

func (s *Store) ResetAccessFailedCount(_ context.Context, user *models.User) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.AccessFailedCount = 0
	return nil
}

func (s *Store) GetAccessFailedCount(_ context.Context, user *models.User) (int, error) {
	if user == nil {
		return 0, apperrors.InvalidArgument("user")
	}
	return user.AccessFailedCount, nil
}

func (s *Store) GetLockoutEnabled(_ context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, apperrors.InvalidArgument("user")
	}
	return user.LockoutEnabled, nil
}

func (s *Store) SetLockoutEnabled(_ context.Context, user *models.User, enabled bool) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	user.LockoutEnabled = enabled
	return nil
}
