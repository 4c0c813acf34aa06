package service

import (
	"context"
	"io"
	"time"
)

// SnapshotInfo describes a stored snapshot object.
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// SnapshotStorage defines the blob operations snapshots need.
// This abstraction allows for different storage backends (filesystem, S3, etc.)
type SnapshotStorage interface {
	// Create opens name for writing. The object becomes visible on Close.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Open opens name for reading. Missing objects yield os.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether name is stored
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes name
	Delete(ctx context.Context, name string) error

	// List returns stored snapshots sorted by name
	List(ctx context.Context) ([]SnapshotInfo, error)

	// Location describes where objects live, for log messages
	Location() string
}
