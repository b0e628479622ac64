// Package remote holds the stores artifacts are published to. Directories
// are slash separated and relative to the store's root (the login directory
// for ftp).
package remote

import (
	"context"
	"os"
	"path/filepath"
	"standings-sync/internal/osutil"
	"strings"
)

// Store is a remote file store, implementations must make Upload an
// overwrite so the alias can be replaced in place.
type Store interface {
	// EnsureDir makes sure dir exists, creating missing components.
	EnsureDir(ctx context.Context, dir string) error
	Upload(ctx context.Context, dir, name string, data []byte) error
	Download(ctx context.Context, dir, name string) ([]byte, error)
	Close() error
}

// splitDir returns the non-empty components of a slash separated directory.
func splitDir(dir string) []string {
	var out []string
	for _, part := range strings.Split(dir, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// DirStore publishes into a local directory, for hosts where the web root is
// mounted on the machine running the sync.
type DirStore struct {
	root string
}

func NewDirStore(root string) DirStore {
	return DirStore{root: root}
}

func (s DirStore) path(dir string, name ...string) string {
	parts := append([]string{s.root}, splitDir(dir)...)
	parts = append(parts, name...)
	return filepath.Join(parts...)
}

func (s DirStore) EnsureDir(ctx context.Context, dir string) error {
	return os.MkdirAll(s.path(dir), 0755)
}

func (s DirStore) Upload(ctx context.Context, dir, name string, data []byte) error {
	return osutil.WriteFileAtomic(s.path(dir, name), data)
}

func (s DirStore) Download(ctx context.Context, dir, name string) ([]byte, error) {
	return os.ReadFile(s.path(dir, name))
}

func (s DirStore) Close() error {
	return nil
}
