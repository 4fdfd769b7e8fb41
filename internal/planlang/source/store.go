// Package source defines the Store interface plan loading reads through,
// and a local-filesystem implementation of it.
package source

import (
	"fmt"
	"os"
	"path/filepath"
)

// ItemID identifies one readable plan source. The local-file variant is
// the only one section 6 requires; other backends (e.g. an object store)
// can add their own variant alongside it.
type ItemID struct {
	AbsolutePath string
}

// Store reads plan source bytes by ItemID.
type Store interface {
	Read(id ItemID) ([]byte, error)
}

// LocalFileStore reads plan sources from the local filesystem, rooted at
// RootPath. Every ItemID it is given must already be an absolute path
// under RootPath; ResolveRelative is how callers construct one from a
// plan-relative module reference.
type LocalFileStore struct {
	RootPath string
}

// NewLocalFileStore roots a LocalFileStore at rootPath.
func NewLocalFileStore(rootPath string) *LocalFileStore {
	return &LocalFileStore{RootPath: rootPath}
}

func (s *LocalFileStore) Read(id ItemID) ([]byte, error) {
	data, err := os.ReadFile(id.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("reading plan source %s: %w", id.AbsolutePath, err)
	}
	return data, nil
}

// ResolveRelative resolves a module reference against the directory of the
// plan that referenced it, per section 4.4's "resolve the module path
// relative to the current plan's source file" rule.
func ResolveRelative(fromSourceID, moduleRef string) ItemID {
	if filepath.IsAbs(moduleRef) {
		return ItemID{AbsolutePath: filepath.Clean(moduleRef)}
	}
	dir := filepath.Dir(fromSourceID)
	return ItemID{AbsolutePath: filepath.Clean(filepath.Join(dir, moduleRef))}
}
