package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bravo68web/tableidentity/internal/domain/service"
)

const tmpPrefix = ".tmp-"

// FilesystemStorage keeps snapshots as files below a base directory. All
// access goes through an os.Root, so names cannot leave the directory.
type FilesystemStorage struct {
	root *os.Root
}

// NewFilesystemStorage creates basePath if needed and opens it
func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot directory: %w", err)
	}
	return &FilesystemStorage{root: root}, nil
}

func (s *FilesystemStorage) Location() string {
	return s.root.Name()
}

// Close releases the directory handle
func (s *FilesystemStorage) Close() error {
	return s.root.Close()
}

// fileUpload writes to a hidden temporary file and renames it into place on
// Close, so readers never observe a partial snapshot.
type fileUpload struct {
	*os.File
	root      *os.Root
	tmp, name string
}

func (u *fileUpload) Close() error {
	if err := u.File.Close(); err != nil {
		_ = u.root.Remove(u.tmp)
		return err
	}
	if err := u.root.Rename(u.tmp, u.name); err != nil {
		_ = u.root.Remove(u.tmp)
		return err
	}
	return nil
}

func (s *FilesystemStorage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	dir, base := path.Split(name)
	if dir != "" {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	tmp := dir + tmpPrefix + base + "-" + uuid.NewString()
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileUpload{File: f, root: s.root, tmp: tmp, name: name}, nil
}

func (s *FilesystemStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := s.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, os.ErrNotExist
	}
	return f, err
}

func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	info, err := s.root.Stat(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FilesystemStorage) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := s.root.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return os.ErrNotExist
	}
	return err
}

// List walks the directory and returns every stored snapshot, sorted by
// name. Uploads still in progress are skipped.
func (s *FilesystemStorage) List(ctx context.Context) ([]service.SnapshotInfo, error) {
	var out []service.SnapshotInfo
	err := fs.WalkDir(s.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, service.SnapshotInfo{Name: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Location(), err)
	}
	slices.SortFunc(out, func(a, b service.SnapshotInfo) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
