package gitsrc

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// Repository adapts a go-git repository to the engine's commit and blob
// collaborator contracts.
type Repository struct {
	repo *git.Repository
	path string
}

// Open opens the git repository at path.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// History returns the commit range from the root to HEAD in author-time
// order, oldest first. Changed files are diffed against the first parent;
// merge commits therefore contribute only their first-parent delta, keeping
// every change counted exactly once.
func (r *Repository) History(ctx context.Context) ([]Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	defer iter.Close()

	var commits []Commit

	iterErr := iter.ForEach(func(c *object.Commit) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		files, diffErr := changedFiles(c)
		if diffErr != nil {
			return fmt.Errorf("diff commit %s: %w", c.Hash, diffErr)
		}

		commits = append(commits, Commit{
			Hash:   c.Hash.String(),
			Author: c.Author.Email,
			When:   c.Author.When,
			Files:  files,
		})

		return nil
	})
	if iterErr != nil {
		return nil, fmt.Errorf("walk history: %w", iterErr)
	}

	// The log walks newest-first; the engine folds oldest-first.
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].When.Before(commits[j].When)
	})

	return commits, nil
}

// GetBlob implements BlobReader by content hash lookup.
func (r *Repository) GetBlob(_ context.Context, commitHash string, change FileChange) ([]byte, error) {
	blob, err := r.repo.BlobObject(plumbing.NewHash(change.Hash))
	if err != nil {
		return nil, fmt.Errorf("blob %s (%s at commit %s): %w", change.Hash, change.Path, commitHash, err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", change.Hash, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", change.Hash, err)
	}

	return data, nil
}

// changedFiles lists the added and modified files of a commit relative to
// its first parent. Root commits contribute their whole tree.
func changedFiles(c *object.Commit) ([]FileChange, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}

	if c.NumParents() == 0 {
		return allFiles(tree)
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("parent: %w", err)
	}

	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("parent tree: %w", err)
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, fmt.Errorf("diff tree: %w", err)
	}

	var files []FileChange

	for _, change := range changes {
		action, actionErr := change.Action()
		if actionErr != nil {
			return nil, fmt.Errorf("change action: %w", actionErr)
		}

		switch action {
		case merkletrie.Insert:
			files = append(files, FileChange{
				Path: change.To.Name,
				Hash: change.To.TreeEntry.Hash.String(),
			})
		case merkletrie.Modify:
			files = append(files, FileChange{
				Path:     change.To.Name,
				Hash:     change.To.TreeEntry.Hash.String(),
				PrevHash: change.From.TreeEntry.Hash.String(),
			})
		case merkletrie.Delete:
			continue
		}
	}

	return files, nil
}

// allFiles lists every file of a tree as an added file.
func allFiles(tree *object.Tree) ([]FileChange, error) {
	var files []FileChange

	err := tree.Files().ForEach(func(f *object.File) error {
		files = append(files, FileChange{
			Path: f.Name,
			Hash: f.Hash.String(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tree files: %w", err)
	}

	return files, nil
}
