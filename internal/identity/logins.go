package identity

import (
	"context"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// AddLogin binds an external login to user. The provider-key index row is
// inserted first, so a login already bound to any user is a conflict.
func (s *Store) AddLogin(ctx context.Context, user *models.User, login models.LoginInfo) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if err := validateLogin(login); err != nil {
		return err
	}

	comp := newCompensator(s.logCtx(ctx).WithFields(logger.UserID(user.ID), logger.LoginProvider(login.LoginProvider)))
	if err := s.addLogins(ctx, user.ID, []models.LoginInfo{login}, comp); err != nil {
		_ = comp.run(ctx)
		return err
	}
	return nil
}

// RemoveLogin removes the login row, when it belongs to login.LoginProvider, and
// then its provider-key index row.
func (s *Store) RemoveLogin(ctx context.Context, user *models.User, login models.LoginInfo) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if err := validateLogin(login); err != nil {
		return err
	}

	// The row key is the provider key alone, so the stored provider must
	// match before the row is ours to delete.
	pk, rk := keys.Login(user.ID, login.ProviderKey)
	e, err := s.logins.Retrieve(ctx, pk, rk)
	if err != nil {
		if tablestore.IsNotFound(err) {
			return apperrors.NotFound("login", err)
		}
		return apperrors.StorageError("read login", err)
	}
	var row models.UserLogin
	if err := codec.FromEntity(e, &row); err != nil {
		return apperrors.StorageError("decode login", err)
	}
	if row.LoginProvider != login.LoginProvider {
		return apperrors.NotFound("login", nil)
	}
	if _, err := s.logins.Execute(ctx, tablestore.Delete(&tablestore.Entity{PartitionKey: pk, RowKey: rk, ETag: e.ETag})); err != nil {
		if tablestore.IsNotFound(err) {
			return apperrors.NotFound("login", err)
		}
		return apperrors.StorageError("delete login", err)
	}

	ipk, irk := keys.LoginProviderKeyIndex(login.LoginProvider, login.ProviderKey)
	if err := deleteIndexIfOwned(ctx, s.loginIndex, ipk, irk, user.ID); err != nil {
		return apperrors.StorageError("delete login index", err)
	}
	return nil
}

// GetLogins lists the external logins of user.
func (s *Store) GetLogins(ctx context.Context, user *models.User) ([]models.LoginInfo, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	rows, err := s.loginRows(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.LoginInfo, len(rows))
	for i, r := range rows {
		out[i] = r.Info()
	}
	return out, nil
}

func (s *Store) loginRows(ctx context.Context, userID string) ([]models.UserLogin, error) {
	rows := make([]models.UserLogin, 0)
	err := tablestore.ScanAll(ctx, s.logins, tablestore.Query{PartitionKey: userID}, func(e *tablestore.Entity) error {
		var l models.UserLogin
		if err := codec.FromEntity(e, &l); err != nil {
			return err
		}
		rows = append(rows, l)
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageError("list logins", err)
	}
	return rows, nil
}

// addLogins claims the provider-key index row of every login, then writes the
// login rows in batches. Every completed write is registered with comp.
func (s *Store) addLogins(ctx context.Context, userID string, logins []models.LoginInfo, comp *compensator) error {
	for _, login := range logins {
		if err := validateLogin(login); err != nil {
			return err
		}
		pk, rk := keys.LoginProviderKeyIndex(login.LoginProvider, login.ProviderKey)
		if _, err := s.loginIndex.Execute(ctx, tablestore.Insert(indexEntity(pk, rk, userID))); err != nil {
			if tablestore.IsConflict(err) {
				return apperrors.Conflict("external login is already bound to a user", err)
			}
			return apperrors.StorageError("insert login index", err)
		}
		comp.deleteOnFailure(s.loginIndex, pk, rk)
	}

	for start := 0; start < len(logins); start += tablestore.MaxBatchSize {
		end := min(start+tablestore.MaxBatchSize, len(logins))
		ops := make([]tablestore.Operation, 0, end-start)
		for _, login := range logins[start:end] {
			pk, rk := keys.Login(userID, login.ProviderKey)
			e, err := codec.ToEntity(pk, rk, models.UserLogin{
				UserID:        userID,
				LoginProvider: login.LoginProvider,
				ProviderKey:   login.ProviderKey,
			})
			if err != nil {
				return apperrors.InternalError("encode login", err)
			}
			ops = append(ops, tablestore.Insert(e))
		}
		if _, err := s.logins.ExecuteBatch(ctx, ops); err != nil {
			if tablestore.IsConflict(err) {
				return apperrors.Conflict("user already has a login with this provider key", err)
			}
			return apperrors.StorageError("write logins", err)
		}
		for _, op := range ops {
			comp.deleteOnFailure(s.logins, op.Entity.PartitionKey, op.Entity.RowKey)
		}
	}
	return nil
}

func validateLogin(login models.LoginInfo) error {
	if login.LoginProvider == "" {
		return apperrors.InvalidArgument("login.LoginProvider")
	}
	if login.ProviderKey == "" {
		return apperrors.InvalidArgument("login.ProviderKey")
	}
	return nil
}

func validateUser(user *models.User) error {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if user.ID == "" {
		return apperrors.InvalidArgument("user.ID")
	}
	return nil
}
