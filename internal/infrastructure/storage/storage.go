// Package storage holds the blob stores snapshots are written to.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/domain/service"
)

// Open returns the snapshot store selected by cfg.Type
func Open(ctx context.Context, cfg *config.SnapshotConfig) (service.SnapshotStorage, error) {
	switch {
	case cfg.IsFilesystem():
		return NewFilesystemStorage(cfg.BasePath)
	case cfg.IsS3():
		return NewS3Storage(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported snapshot storage type: %s", cfg.Type)
	}
}

// validName rejects empty names and names that would escape the storage root.
// Slash separated names such as "nightly/identity.jsonl" are allowed.
func validName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	if path.Clean("/"+name)[1:] != name || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
