package streaming

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/extract"
	"github.com/tickfold/tickfold/internal/gitsrc"
	"github.com/tickfold/tickfold/internal/hibernate"
	"github.com/tickfold/tickfold/internal/imports"
	"github.com/tickfold/tickfold/internal/persist"
	"github.com/tickfold/tickfold/internal/tickstore"
)

var errBlobUnavailable = errors.New("blob unavailable")

// fakeBlobs serves blob content by hash, failing for hashes in broken.
type fakeBlobs struct {
	content map[string][]byte
	broken  map[string]bool
}

func (f *fakeBlobs) GetBlob(_ context.Context, _ string, change gitsrc.FileChange) ([]byte, error) {
	if f.broken[change.Hash] {
		return nil, errBlobUnavailable
	}

	data, ok := f.content[change.Hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errBlobUnavailable, change.Hash)
	}

	return data, nil
}

// history is a synthetic commit stream with in-memory blob content.
type history struct {
	start   time.Time
	commits []gitsrc.Commit
	blobs   *fakeBlobs
	people  *gitsrc.People
	ticks   *gitsrc.TickResolver
}

func newHistory(start time.Time) *history {
	return &history{
		start: start,
		blobs: &fakeBlobs{
			content: map[string][]byte{},
			broken:  map[string]bool{},
		},
	}
}

// addCommit appends a commit whose single changed file contains a Go source
// importing the given packages. prevHash links a modification to the prior
// version of the file.
func (h *history) addCommit(hash, author string, offset time.Duration, path, blobHash, prevHash string, pkgs ...string) {
	src := "package main\n\nimport (\n"
	for _, p := range pkgs {
		src += "\t\"" + p + "\"\n"
	}

	src += ")\n"

	h.blobs.content[blobHash] = []byte(src)

	h.commits = append(h.commits, gitsrc.Commit{
		Hash:   hash,
		Author: author,
		When:   h.start.Add(offset),
		Files: []gitsrc.FileChange{
			{Path: path, Hash: blobHash, PrevHash: prevHash},
		},
	})
}

func (h *history) finish() {
	h.people = gitsrc.PeopleFromCommits(h.commits)
	h.ticks = gitsrc.NewTickResolver(h.start, gitsrc.DefaultTickSize)
}

// builder returns a PipelineBuilder over the synthetic history. Each
// partition gets its own store and spill directory.
func (h *history) builder(t *testing.T, hibernateThreshold int64) PipelineBuilder {
	t.Helper()

	return func(index int, _ Bounds) (*Pipeline, error) {
		store := tickstore.New(imports.NewAccumulator)

		pipeline := &Pipeline{
			Extractor: extract.New(
				extract.DefaultConfig(),
				h.blobs,
				imports.NewExtractor(),
				h.ticks,
				h.people,
				nil,
				nil,
			),
			Store: store,
		}

		if hibernateThreshold > 0 {
			controller := hibernate.NewController(
				hibernateThreshold,
				persist.NewFSStore(t.TempDir()),
				imports.NewAccumulator,
				nil,
				nil,
			)

			store.SetBooter(controller)
			pipeline.Hibernation = controller
		}

		return pipeline, nil
	}
}

// runAll folds the full history through a single pipeline and returns the
// flattened import map.
func (h *history) runAll(t *testing.T) imports.Map {
	t.Helper()

	pipeline, err := h.builder(t, 0)(0, Bounds{Start: 0, End: len(h.commits)})
	require.NoError(t, err)

	require.NoError(t, pipeline.Run(context.Background(), h.commits))

	return flatten(t, pipeline.Store)
}

func flatten(t *testing.T, store *tickstore.Store) imports.Map {
	t.Helper()

	accs := make(map[int]analyze.Accumulator, store.Len())

	for _, tick := range store.Ticks() {
		acc, err := store.Accumulator(tick)
		require.NoError(t, err)

		accs[tick] = acc
	}

	result, err := imports.BuildMap(accs)
	require.NoError(t, err)

	return result.(imports.Map)
}
