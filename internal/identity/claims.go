package identity

import (
	"context"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

// GetClaims lists the claims of user.
func (s *Store) GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	claims := make([]models.Claim, 0)
	err := tablestore.ScanAll(ctx, s.claims, tablestore.Query{PartitionKey: user.ID}, func(e *tablestore.Entity) error {
		var c models.UserClaim
		if err := codec.FromEntity(e, &c); err != nil {
			return err
		}
		claims = append(claims, c.Claim())
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageError("list claims", err)
	}
	return claims, nil
}

// AddClaim stores claim for user, replacing any claim of the same type.
func (s *Store) AddClaim(ctx context.Context, user *models.User, claim models.Claim) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if claim.Type == "" {
		return apperrors.InvalidArgument("claim.Type")
	}

	pk, rk := keys.Claim(user.ID, claim.Type)
	e, err := codec.ToEntity(pk, rk, models.UserClaim{UserID: user.ID, ClaimType: claim.Type, ClaimValue: claim.Value})
	if err != nil {
		return apperrors.InternalError("encode claim", err)
	}
	if _, err := s.claims.Execute(ctx, tablestore.InsertOrReplace(e)); err != nil {
		return apperrors.StorageError("write claim", err)
	}
	return nil
}

// RemoveClaim deletes the claim of the given type when its value matches.
func (s *Store) RemoveClaim(ctx context.Context, user *models.User, claim models.Claim) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if claim.Type == "" {
		return apperrors.InvalidArgument("claim.Type")
	}

	pk, rk := keys.Claim(user.ID, claim.Type)
	e, err := s.claims.Retrieve(ctx, pk, rk)
	if err != nil {
		if tablestore.IsNotFound(err) {
			return apperrors.NotFound("claim", err)
		}
		return apperrors.StorageError("read claim", err)
	}
	var stored models.UserClaim
	if err := codec.FromEntity(e, &stored); err != nil {
		return apperrors.StorageError("decode claim", err)
	}
	if stored.ClaimValue != claim.Value {
		return apperrors.NotFound("claim", apperrors.ErrNotFound)
	}

	if _, err := s.claims.Execute(ctx, tablestore.Delete(&tablestore.Entity{PartitionKey: pk, RowKey: rk, ETag: e.ETag})); err != nil {
		if tablestore.IsNotFound(err) {
			return apperrors.NotFound("claim", err)
		}
		return apperrors.StorageError("delete claim", err)
	}
	return nil
}
