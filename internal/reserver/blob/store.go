// Package blob persists reservation artifacts under deterministic names.
// Writes overwrite: redelivering the same order produces the same blob,
// which is what makes the reservation worker idempotent.
package blob

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store is the port for the artifact container.
type Store interface {
	// Put writes body under name, replacing any existing content.
	Put(ctx context.Context, name string, body []byte) error
}

// FsStore writes artifacts to a directory on an afero filesystem. In
// production this is the OS filesystem; tests use a MemMapFs.
type FsStore struct {
	fs  afero.Fs
	dir string
}

func NewFsStore(fs afero.Fs, dir string) *FsStore {
	return &FsStore{fs: fs, dir: dir}
}

func (s *FsStore) Put(_ context.Context, name string, body []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("blob: ensure container %s: %w", s.dir, err)
	}
	// WriteFile truncates, giving the required overwrite semantics.
	path := filepath.Join(s.dir, name)
	if err := afero.WriteFile(s.fs, path, body, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", path, err)
	}
	return nil
}
