package identity

import (
	"context"
	"strings"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

// AddToRole makes user a member of role. Adding an existing membership is a no-op.
func (s *Store) AddToRole(ctx context.Context, user *models.User, role string) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if strings.TrimSpace(role) == "" {
		return apperrors.InvalidArgument("role")
	}

	pk, rk := keys.Role(user.ID, role)
	e, err := codec.ToEntity(pk, rk, models.NewUserRole(user.ID, role))
	if err != nil {
		return apperrors.InternalError("encode role", err)
	}
	if _, err := s.roles.Execute(ctx, tablestore.Insert(e)); err != nil && !tablestore.IsConflict(err) {
		return apperrors.StorageError("write role", err)
	}
	return nil
}

// RemoveFromRole ends the membership of user in role.
func (s *Store) RemoveFromRole(ctx context.Context, user *models.User, role string) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if strings.TrimSpace(role) == "" {
		return apperrors.InvalidArgument("role")
	}

	pk, rk := keys.Role(user.ID, role)
	if _, err := s.roles.Execute(ctx, tablestore.DeleteKey(pk, rk)); err != nil {
		if tablestore.IsNotFound(err) {
			return apperrors.NotFound("role membership", err)
		}
		return apperrors.StorageError("delete role", err)
	}
	return nil
}

// GetRoles lists the role names of user.
func (s *Store) GetRoles(ctx context.Context, user *models.User) ([]string, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	roles := make([]string, 0)
	err := tablestore.ScanAll(ctx, s.roles, tablestore.Query{PartitionKey: user.ID}, func(e *tablestore.Entity) error {
		var r models.UserRole
		if err := codec.FromEntity(e, &r); err != nil {
			return err
		}
		roles = append(roles, r.Name)
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageError("list roles", err)
	}
	return roles, nil
}

// IsInRole reports whether user is a member of role.
func (s *Store) IsInRole(ctx context.Context, user *models.User, role string) (bool, error) {
	if err := validateUser(user); err != nil {
		return false, err
	}
	if strings.TrimSpace(role) == "" {
		return false, apperrors.InvalidArgument("role")
	}

	pk, rk := keys.Role(user.ID, role)
	if _, err := s.roles.Retrieve(ctx, pk, rk); err != nil {
		if tablestore.IsNotFound(err) {
			return false, nil
		}
		return false, apperrors.StorageError("read role", err)
	}
	return true, nil
}
