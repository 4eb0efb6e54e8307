package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by BlobStore.Get for an unknown key.
var ErrNotFound = errors.New("blob not found")

// blobDirPerm is the permission mode for blob store directories.
const blobDirPerm = 0o750

// BlobStore is a path-addressed byte-blob storage backend. It backs both
// checkpointing and hibernation; implementations must make Put atomic.
type BlobStore interface {
	// Put durably stores data under key, replacing any previous value.
	Put(key string, data []byte) error

	// Get returns the data stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Delete removes the data stored under key. Deleting an absent key is
	// not an error.
	Delete(key string) error
}

// FSStore is a filesystem-backed BlobStore. Keys map to file names inside
// Dir; writes go through a temp file and rename.
type FSStore struct {
	// Dir is the backing directory. Created lazily on first Put.
	Dir string
}

// NewFSStore creates a filesystem blob store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Dir: dir}
}

// Put implements BlobStore.Put with temp-then-rename discipline.
func (s *FSStore) Put(key string, data []byte) error {
	err := os.MkdirAll(s.Dir, blobDirPerm)
	if err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}

	_, writeErr := tmp.Write(data)

	closeErr := tmp.Close()

	if writeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("write blob %s: %w", key, writeErr)
	}

	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close blob %s: %w", key, closeErr)
	}

	renameErr := os.Rename(tmp.Name(), filepath.Join(s.Dir, key))
	if renameErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("commit blob %s: %w", key, renameErr)
	}

	return nil
}

// Get implements BlobStore.Get.
func (s *FSStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}

	return data, nil
}

// Delete implements BlobStore.Delete.
func (s *FSStore) Delete(key string) error {
	err := os.Remove(filepath.Join(s.Dir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}

	return nil
}
