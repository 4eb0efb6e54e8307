// Package gitsrc supplies the engine's external collaborators around a git
// repository: the commit/diff stream, blob retrieval with an LRU cache, the
// tick resolver, and author identity interning.
package gitsrc

import (
	"context"
	"time"
)

// FileChange is one added or modified file in a commit. Hash is the content
// hash of the file's blob, stable across commits that share content.
// PrevHash is the blob hash of the file before the change, empty for added
// files; it lets extraction attribute only what the change introduced.
type FileChange struct {
	Path     string
	Hash     string
	PrevHash string
}

// Commit is one commit of the analyzed range: a stable identity, the author
// key, the author timestamp, and the added/modified file set.
type Commit struct {
	Hash   string
	Author string
	When   time.Time
	Files  []FileChange
}

// BlobReader fetches file content for one changed file of one commit.
// Retrieval failures are hard errors: they abort the whole commit.
type BlobReader interface {
	GetBlob(ctx context.Context, commitHash string, change FileChange) ([]byte, error)
}
