package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/gitsrc"
)

// fakeBlobs serves blob content from a map and fails for hashes listed in
// broken.
type fakeBlobs struct {
	content map[string][]byte
	broken  map[string]bool
}

func (f *fakeBlobs) GetBlob(_ context.Context, _ string, change gitsrc.FileChange) ([]byte, error) {
	if f.broken[change.Hash] {
		return nil, errors.New("object not found")
	}

	return f.content[change.Hash], nil
}

// fakeExtractor emits one fact per line of the file and fails on content
// containing "syntax error".
type fakeExtractor struct{}

func (fakeExtractor) Supported(path string) bool {
	return strings.HasSuffix(path, ".go")
}

func (fakeExtractor) Extract(_ string, data []byte) ([]analyze.Fact, error) {
	if strings.Contains(string(data), "syntax error") {
		return nil, errors.New("parse failed")
	}

	var facts []analyze.Fact

	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			facts = append(facts, analyze.Fact{Category: "go", Key: line})
		}
	}

	return facts, nil
}

type fixedTick int

func (f fixedTick) Tick(time.Time) int { return int(f) }

type fixedAuthor int

func (f fixedAuthor) Resolve(string) int { return int(f) }

func newTestExtractor(blobs gitsrc.BlobReader, cfg Config) *Extractor {
	return New(cfg, blobs, fakeExtractor{}, fixedTick(3), fixedAuthor(7), nil, nil)
}

func commitWithFiles(hashes ...string) gitsrc.Commit {
	c := gitsrc.Commit{Hash: "commit1", Author: "dev", When: time.Now()}

	for _, h := range hashes {
		c.Files = append(c.Files, gitsrc.FileChange{Path: h + ".go", Hash: h})
	}

	return c
}

func TestExtractCommit_CollectsEntries(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{content: map[string][]byte{
		"a": []byte("fmt\nos\n"),
		"b": []byte("io\n"),
	}}

	tce := newTestExtractor(blobs, DefaultConfig())

	tc, err := tce.ExtractCommit(context.Background(), commitWithFiles("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, "commit1", tc.CommitHash)
	assert.Equal(t, 3, tc.Tick)
	assert.Equal(t, 7, tc.AuthorID)

	keys := make([]string, 0, len(tc.Entries))
	for _, e := range tc.Entries {
		assert.Equal(t, 3, e.Tick)
		assert.Equal(t, 7, e.AuthorID)

		keys = append(keys, e.Key)
	}

	assert.ElementsMatch(t, []string{"fmt", "os", "io"}, keys)
}

func TestExtractCommit_NoFiles(t *testing.T) {
	t.Parallel()

	tce := newTestExtractor(&fakeBlobs{}, DefaultConfig())

	tc, err := tce.ExtractCommit(context.Background(), commitWithFiles())
	require.NoError(t, err)
	assert.Empty(t, tc.Entries)
}

func TestExtractCommit_SoftSkips(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x\n", 100)

	blobs := &fakeBlobs{content: map[string][]byte{
		"good":   []byte("fmt\n"),
		"empty":  nil,
		"big":    []byte(big),
		"broken": []byte("syntax error\n"),
	}}

	cfg := DefaultConfig()
	cfg.MaxFileSize = 64

	tce := newTestExtractor(blobs, cfg)

	commit := commitWithFiles("good", "empty", "big", "broken")
	// An unsupported extension is skipped before retrieval.
	commit.Files = append(commit.Files, gitsrc.FileChange{Path: "README.md", Hash: "doc"})

	tc, err := tce.ExtractCommit(context.Background(), commit)
	require.NoError(t, err)

	require.Len(t, tc.Entries, 1)
	assert.Equal(t, "fmt", tc.Entries[0].Key)
}

func TestExtractCommit_ModifiedFileCountsOnlyAdditions(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{content: map[string][]byte{
		"v1": []byte("fmt\n"),
		"v2": []byte("fmt\nos\n"),
	}}

	tce := newTestExtractor(blobs, DefaultConfig())

	commit := gitsrc.Commit{Hash: "commit2", Author: "dev", When: time.Now(), Files: []gitsrc.FileChange{
		{Path: "a.go", Hash: "v2", PrevHash: "v1"},
	}}

	tc, err := tce.ExtractCommit(context.Background(), commit)
	require.NoError(t, err)

	require.Len(t, tc.Entries, 1)
	assert.Equal(t, "os", tc.Entries[0].Key)
}

func TestExtractCommit_UnparsablePreviousVersionCountsAll(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{content: map[string][]byte{
		"v1": []byte("syntax error\n"),
		"v2": []byte("fmt\nos\n"),
	}}

	tce := newTestExtractor(blobs, DefaultConfig())

	commit := gitsrc.Commit{Hash: "commit2", Author: "dev", When: time.Now(), Files: []gitsrc.FileChange{
		{Path: "a.go", Hash: "v2", PrevHash: "v1"},
	}}

	tc, err := tce.ExtractCommit(context.Background(), commit)
	require.NoError(t, err)
	assert.Len(t, tc.Entries, 2)
}

func TestExtractCommit_MissingPreviousBlobIsHard(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{
		content: map[string][]byte{"v2": []byte("fmt\n")},
		broken:  map[string]bool{"v1": true},
	}

	tce := newTestExtractor(blobs, DefaultConfig())

	commit := gitsrc.Commit{Hash: "commit2", Author: "dev", When: time.Now(), Files: []gitsrc.FileChange{
		{Path: "a.go", Hash: "v2", PrevHash: "v1"},
	}}

	_, err := tce.ExtractCommit(context.Background(), commit)
	require.ErrorIs(t, err, ErrRetrieval)
}

func TestExtractCommit_RetrievalFailureIsHard(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{
		content: map[string][]byte{"a": []byte("fmt\n")},
		broken:  map[string]bool{"bad": true},
	}

	tce := newTestExtractor(blobs, DefaultConfig())

	_, err := tce.ExtractCommit(context.Background(), commitWithFiles("a", "bad"))
	require.ErrorIs(t, err, ErrRetrieval)
}

func TestExtractCommit_RetrievalFailureCancelsQueuedWork(t *testing.T) {
	t.Parallel()

	content := map[string][]byte{"bad0": nil}
	broken := map[string]bool{"bad0": true}
	hashes := []string{"bad0"}

	for i := range 100 {
		h := fmt.Sprintf("f%03d", i)
		content[h] = []byte("fmt\n")
		hashes = append(hashes, h)
	}

	cfg := DefaultConfig()
	cfg.Goroutines = 1

	tce := newTestExtractor(&fakeBlobs{content: content, broken: broken}, cfg)

	_, err := tce.ExtractCommit(context.Background(), commitWithFiles(hashes...))
	require.ErrorIs(t, err, ErrRetrieval)
}

func TestExtractCommit_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blobs := &fakeBlobs{content: map[string][]byte{"a": []byte("fmt\n")}}
	tce := newTestExtractor(blobs, DefaultConfig())

	_, err := tce.ExtractCommit(ctx, commitWithFiles("a"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	tce := New(Config{}, &fakeBlobs{}, fakeExtractor{}, fixedTick(0), fixedAuthor(0), nil, nil)

	assert.Equal(t, DefaultGoroutines, tce.cfg.Goroutines)
	assert.Equal(t, int64(DefaultMaxFileSize), tce.cfg.MaxFileSize)
}
