package gitsrc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	dir string
	wt  *git.Worktree
}

func initTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	return &testRepo{dir: dir, wt: wt}
}

func (r *testRepo) commit(t *testing.T, author string, when time.Time, files map[string]string) string {
	t.Helper()

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0o600))

		_, err := r.wt.Add(name)
		require.NoError(t, err)
	}

	hash, err := r.wt.Commit("change "+author, &git.CommitOptions{
		Author: &object.Signature{Name: author, Email: author + "@dev", When: when},
	})
	require.NoError(t, err)

	return hash.String()
}

func TestRepository_HistoryOldestFirst(t *testing.T) {
	t.Parallel()

	tr := initTestRepo(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	h1 := tr.commit(t, "ana", base, map[string]string{"a.go": "package a\n"})
	h2 := tr.commit(t, "bob", base.Add(time.Hour), map[string]string{"b.go": "package b\n"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	commits, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, h1, commits[0].Hash)
	assert.Equal(t, h2, commits[1].Hash)
	assert.Equal(t, "ana@dev", commits[0].Author)
	assert.Equal(t, "bob@dev", commits[1].Author)
}

func TestRepository_RootCommitListsAllFiles(t *testing.T) {
	t.Parallel()

	tr := initTestRepo(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.commit(t, "ana", base, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	commits, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, commits, 1)

	paths := make([]string, 0, len(commits[0].Files))
	for _, f := range commits[0].Files {
		paths = append(paths, f.Path)

		assert.Empty(t, f.PrevHash)
	}

	assert.ElementsMatch(t, []string{"a.go", "b.go"}, paths)
}

func TestRepository_ModificationCarriesPreviousHash(t *testing.T) {
	t.Parallel()

	tr := initTestRepo(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.commit(t, "ana", base, map[string]string{"a.go": "package a\n"})
	tr.commit(t, "ana", base.Add(time.Hour), map[string]string{"a.go": "package a\n\nvar X = 1\n"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	commits, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, commits, 2)

	first := commits[0].Files[0]
	require.Len(t, commits[1].Files, 1)

	second := commits[1].Files[0]
	assert.Equal(t, "a.go", second.Path)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.NotEqual(t, second.Hash, second.PrevHash)
}

func TestRepository_GetBlob(t *testing.T) {
	t.Parallel()

	tr := initTestRepo(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.commit(t, "ana", base, map[string]string{"a.go": "package a\n"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	commits, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, commits[0].Files, 1)

	data, err := repo.GetBlob(context.Background(), commits[0].Hash, commits[0].Files[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("package a\n"), data)
}

func TestRepository_GetBlobMissing(t *testing.T) {
	t.Parallel()

	tr := initTestRepo(t)
	tr.commit(t, "ana", time.Now(), map[string]string{"a.go": "package a\n"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	_, err = repo.GetBlob(context.Background(), "head", FileChange{
		Path: "ghost.go",
		Hash: "0000000000000000000000000000000000000000",
	})
	require.Error(t, err)
}

func TestOpen_MissingRepository(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir())
	require.Error(t, err)
}
