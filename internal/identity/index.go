package identity

import (
	"context"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/tablestore"
)

func indexEntity(pk, rk, userID string) *tablestore.Entity {
	return &tablestore.Entity{
		PartitionKey: pk,
		RowKey:       rk,
		Properties:   tablestore.Properties{"UserId": userID},
	}
}

// readIndex returns the entry at (pk, rk), or nil when there is none.
func readIndex(ctx context.Context, t tablestore.Table, pk, rk string) (*models.IndexEntry, *tablestore.Entity, error) {
	e, err := t.Retrieve(ctx, pk, rk)
	if err != nil {
		if tablestore.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var entry models.IndexEntry
	if err := codec.FromEntity(e, &entry); err != nil {
		return nil, nil, err
	}
	return &entry, e, nil
}

// deleteIndexIfOwned removes the entry at (pk, rk) when it points at userID.
// Entries owned by another user, or already gone, are left alone.
func deleteIndexIfOwned(ctx context.Context, t tablestore.Table, pk, rk, userID string) error {
	entry, e, err := readIndex(ctx, t, pk, rk)
	if err != nil || entry == nil {
		return err
	}
	if entry.UserID != userID {
		return nil
	}
	_, err = t.Execute(ctx, tablestore.Delete(&tablestore.Entity{PartitionKey: pk, RowKey: rk, ETag: e.ETag}))
	if tablestore.IsNotFound(err) {
		return nil
	}
	return err
}
