// Package checkpoint persists engine state to disk so interrupted runs can
// resume from the last processed commit instead of starting over.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/persist"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// SchemaVersion is the current checkpoint blob format version. Loading a
// blob with a different version fails with ErrSchemaMismatch.
const SchemaVersion = 1

// Sentinel errors for checkpoint validation.
var (
	ErrSchemaMismatch   = errors.New("checkpoint schema mismatch")
	ErrRepoPathMismatch = errors.New("repo path mismatch")
)

// Default save cadence values.
const (
	DefaultEveryN   = 1000
	DefaultInterval = 5 * time.Minute
)

// Directory permissions for checkpoints.
const dirPerm = 0o750

// DefaultDir returns the default checkpoint directory (~/.tickfold/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".tickfold", "checkpoints")
}

// RepoHash computes a short hash of the repository path for use as directory name.
func RepoHash(repoPath string) string {
	h := sha256.Sum256([]byte(repoPath))

	return hex.EncodeToString(h[:8]) // First 8 bytes = 16 hex chars.
}

// Blob is the on-disk checkpoint envelope. Accumulator state is carried as
// opaque per-tick byte slices, so the envelope never depends on a concrete
// accumulator type.
type Blob struct {
	Version   int
	RepoPath  string
	CreatedAt time.Time
	Cursor    tickstore.Cursor
	Ticks     map[int][]byte
}

// Manager saves and restores tick store state for one repository.
type Manager struct {
	BaseDir  string
	RepoHash string

	// EveryN triggers a save after that many commits since the last one.
	EveryN int

	// Interval triggers a save after that much wall time since the last one.
	Interval time.Duration

	persister *persist.Persister[Blob]
}

// NewManager creates a checkpoint manager with default cadence.
func NewManager(baseDir, repoHash string) *Manager {
	return &Manager{
		BaseDir:   baseDir,
		RepoHash:  repoHash,
		EveryN:    DefaultEveryN,
		Interval:  DefaultInterval,
		persister: persist.NewPersister[Blob]("state", persist.NewGobCodec()),
	}
}

// Dir returns the directory for this repository's checkpoint.
func (m *Manager) Dir() string {
	return filepath.Join(m.BaseDir, m.RepoHash)
}

// Exists returns true if a checkpoint exists for this repository.
func (m *Manager) Exists() bool {
	_, err := os.Stat(filepath.Join(m.Dir(), "state.gob"))

	return err == nil
}

// Clear removes the checkpoint for the current repository.
func (m *Manager) Clear() error {
	dir := m.Dir()

	_, statErr := os.Stat(dir)
	if os.IsNotExist(statErr) {
		return nil
	}

	err := os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}

// Save writes the current store state atomically. A crash mid-save leaves
// the previous checkpoint intact.
func (m *Manager) Save(store *tickstore.Store, repoPath string) error {
	dir := m.Dir()

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	blob := Blob{
		Version:   SchemaVersion,
		RepoPath:  repoPath,
		CreatedAt: time.Now().UTC(),
		Cursor:    snap.Cursor,
		Ticks:     snap.Ticks,
	}

	saveErr := m.persister.Save(dir, func() *Blob { return &blob })
	if saveErr != nil {
		return fmt.Errorf("save checkpoint: %w", saveErr)
	}

	return nil
}

// Load reads the checkpoint blob, checking the schema version before any
// accumulator bytes are decoded.
func (m *Manager) Load() (*Blob, error) {
	var blob Blob

	err := m.persister.Load(m.Dir(), func(b *Blob) { blob = *b })
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if blob.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: checkpoint has version %d, expected %d",
			ErrSchemaMismatch, blob.Version, SchemaVersion)
	}

	return &blob, nil
}

// Restore loads the checkpoint and rebuilds a tick store from it.
func (m *Manager) Restore(factory analyze.Factory) (*tickstore.Store, *Blob, error) {
	blob, err := m.Load()
	if err != nil {
		return nil, nil, err
	}

	store, restoreErr := tickstore.FromSnapshot(factory, &tickstore.Snapshot{
		Cursor: blob.Cursor,
		Ticks:  blob.Ticks,
	})
	if restoreErr != nil {
		return nil, nil, fmt.Errorf("restore store: %w", restoreErr)
	}

	return store, blob, nil
}

// Validate checks that the checkpoint belongs to the given repository.
func (m *Manager) Validate(repoPath string) error {
	blob, err := m.Load()
	if err != nil {
		return err
	}

	if blob.RepoPath != repoPath {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrRepoPathMismatch, blob.RepoPath, repoPath)
	}

	return nil
}

// ShouldSave reports whether the save cadence has elapsed, by commit count
// or by wall time since the last save.
func (m *Manager) ShouldSave(commitsSinceLast int, lastSave time.Time) bool {
	if m.EveryN > 0 && commitsSinceLast >= m.EveryN {
		return true
	}

	if m.Interval > 0 && !lastSave.IsZero() && time.Since(lastSave) >= m.Interval {
		return true
	}

	return false
}
