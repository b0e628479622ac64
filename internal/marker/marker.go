// Package marker stores the identity of the most recently published artifact
// of a feed. A missing marker reads as the empty string.
package marker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"standings-sync/internal/osutil"
	"strings"
)

// Store reads and writes the publication marker of a single feed.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, identity string) error
}

// FileStore keeps the marker as plain text in a file.
type FileStore struct {
	path string
}

func NewFileStore(path string) FileStore {
	return FileStore{path: path}
}

func (s FileStore) Path() string {
	return s.path
}

func (s FileStore) Read(ctx context.Context) (string, error) {
	contents, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(contents)), nil
}

// Write replaces the marker atomically so a crash never leaves a truncated
// identity behind.
func (s FileStore) Write(ctx context.Context, identity string) error {
	err := os.MkdirAll(filepath.Dir(s.path), 0755)
	if err != nil {
		return err
	}
	err = osutil.WriteFileAtomic(s.path, []byte(identity))
	if err != nil {
		return fmt.Errorf("replace marker %s: %w", s.path, err)
	}
	return nil
}
