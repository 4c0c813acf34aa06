package identity

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// RemoveAllRoles deletes every role membership of user.
func (s *Store) RemoveAllRoles(ctx context.Context, user *models.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	return s.deletePartition(ctx, s.roles, user.ID)
}

// RemoveAllClaims deletes every claim of user.
func (s *Store) RemoveAllClaims(ctx context.Context, user *models.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	return s.deletePartition(ctx, s.claims, user.ID)
}

// RemoveAllLogins deletes every login of user together with the
// provider-key index rows that point at user.
func (s *Store) RemoveAllLogins(ctx context.Context, user *models.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	rows, err := s.loginRows(ctx, user.ID)
	if err != nil {
		return err
	}

	// Index rows go only after the login partition is gone, so login rows
	// that survive a failed delete keep their index entries.
	if err := s.deletePartition(ctx, s.logins, user.ID); err != nil {
		return bulkDeleteError(s.logins.Name(), user.ID, err)
	}
	var errs error
	for _, l := range rows {
		pk, rk := keys.LoginProviderKeyIndex(l.LoginProvider, l.ProviderKey)
		if err := deleteIndexIfOwned(ctx, s.loginIndex, pk, rk, user.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return bulkDeleteError(s.loginIndex.Name(), user.ID, errs)
	}
	return nil
}

// deletePartition pages through partition pk and deletes its rows in batches
// of up to MaxBatchSize. A failed batch is retried one row at a time; the
// error returned at the end reports the rows that could not be deleted.
func (s *Store) deletePartition(ctx context.Context, t tablestore.Table, pk string) error {
	log := s.logCtx(ctx).WithFields(logger.Table(t.Name()), logger.PartitionKey(pk))

	var (
		errs  error
		batch = make([]tablestore.Operation, 0, tablestore.MaxBatchSize)
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, err := t.ExecuteBatch(ctx, batch); err != nil {
			log.Warn("batch delete failed, deleting rows individually",
				logger.Int("rows", len(batch)),
				logger.Error(err),
			)
			for _, op := range batch {
				if _, err := t.Execute(ctx, op); err != nil && !tablestore.IsNotFound(err) {
					errs = multierr.Append(errs, fmt.Errorf("row %q: %w", op.Entity.RowKey, err))
				}
			}
		}
		batch = batch[:0]
	}

	err := tablestore.ScanAll(ctx, t, tablestore.Query{PartitionKey: pk}, func(e *tablestore.Entity) error {
		batch = append(batch, tablestore.DeleteKey(e.PartitionKey, e.RowKey))
		if len(batch) == tablestore.MaxBatchSize {
			flush()
		}
		return nil
	})
	flush()
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		return bulkDeleteError(t.Name(), pk, errs)
	}
	return nil
}

func bulkDeleteError(table, pk string, errs error) error {
	return apperrors.InternalError(
		fmt.Sprintf("could not delete all rows of %s for %s", table, pk),
		fmt.Errorf("%w: %w", apperrors.ErrBulkDelete, errs),
	)
}
