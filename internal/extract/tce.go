// Package extract turns raw commits into tick-commits by running fact
// extraction over each changed file in a worker pool.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/gitsrc"
	"github.com/tickfold/tickfold/internal/observability"
)

const (
	// DefaultGoroutines is the default worker count for file extraction.
	DefaultGoroutines = 4

	// DefaultMaxFileSize is the default size cutoff above which a file is
	// skipped (1 MB).
	DefaultMaxFileSize = 1 << 20
)

// ErrRetrieval marks a failure to load a blob from the repository. Unlike
// extraction errors it aborts the whole commit.
var ErrRetrieval = errors.New("blob retrieval failed")

// Config controls the extraction worker pool.
type Config struct {
	// Goroutines is the number of concurrent extraction workers.
	Goroutines int

	// MaxFileSize is the per-file size cutoff in bytes. Larger files are
	// skipped.
	MaxFileSize int64
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		Goroutines:  DefaultGoroutines,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// TickResolver maps a commit timestamp to a tick index.
type TickResolver interface {
	Tick(when time.Time) int
}

// AuthorResolver maps an author identity string to a dense integer ID.
type AuthorResolver interface {
	Resolve(author string) int
}

// Extractor runs fact extraction per commit over a pool of goroutines.
// Retrieval failures are hard errors that cancel outstanding work; per-file
// extraction failures are soft and only skip the file.
type Extractor struct {
	cfg       Config
	blobs     gitsrc.BlobReader
	extractor analyze.Extractor
	ticks     TickResolver
	authors   AuthorResolver
	metrics   *observability.EngineMetrics
	logger    *slog.Logger
}

// New creates an Extractor. Zero config fields fall back to defaults, and a
// nil logger discards output.
func New(
	cfg Config,
	blobs gitsrc.BlobReader,
	extractor analyze.Extractor,
	ticks TickResolver,
	authors AuthorResolver,
	metrics *observability.EngineMetrics,
	logger *slog.Logger,
) *Extractor {
	if cfg.Goroutines <= 0 {
		cfg.Goroutines = DefaultGoroutines
	}

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	return &Extractor{
		cfg:       cfg,
		blobs:     blobs,
		extractor: extractor,
		ticks:     ticks,
		authors:   authors,
		metrics:   metrics,
		logger:    observability.OrDiscard(logger),
	}
}

// ExtractCommit produces the tick-commit for a single commit. The tick and
// author are resolved once per commit; every changed file is fanned out to
// the worker pool. The first retrieval failure cancels remaining work and
// fails the commit.
func (e *Extractor) ExtractCommit(ctx context.Context, commit gitsrc.Commit) (analyze.TC, error) {
	tc := analyze.TC{
		CommitHash: commit.Hash,
		Tick:       e.ticks.Tick(commit.When),
		AuthorID:   e.authors.Resolve(commit.Author),
	}

	if len(commit.Files) == 0 {
		return tc, nil
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan gitsrc.FileChange, len(commit.Files))

	// Workers write into disjoint slices, so fan-in needs no locking.
	perWorker := make([][]analyze.Entry, e.cfg.Goroutines)

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		hardErr error
	)

	fail := func(err error) {
		errOnce.Do(func() {
			hardErr = err

			cancel()
		})
	}

	wg.Add(e.cfg.Goroutines)

	for i := range e.cfg.Goroutines {
		go func() {
			defer wg.Done()

			for change := range jobs {
				if poolCtx.Err() != nil {
					continue
				}

				entries, err := e.extractFile(poolCtx, commit, tc, change)
				if err != nil {
					fail(err)

					continue
				}

				perWorker[i] = append(perWorker[i], entries...)
			}
		}()
	}

	for _, change := range commit.Files {
		jobs <- change
	}

	close(jobs)
	wg.Wait()

	if hardErr != nil {
		return analyze.TC{}, hardErr
	}

	if err := ctx.Err(); err != nil {
		return analyze.TC{}, err
	}

	for _, entries := range perWorker {
		tc.Entries = append(tc.Entries, entries...)
	}

	e.metrics.CommitProcessed(len(tc.Entries))

	return tc, nil
}

// extractFile loads one blob and runs extraction on it. A nil slice with a
// nil error means the file was skipped.
func (e *Extractor) extractFile(
	ctx context.Context,
	commit gitsrc.Commit,
	tc analyze.TC,
	change gitsrc.FileChange,
) ([]analyze.Entry, error) {
	if !e.extractor.Supported(change.Path) {
		e.skip(commit, change, observability.SkipReasonUnsupported, nil)

		return nil, nil
	}

	data, err := e.blobs.GetBlob(ctx, commit.Hash, change)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %w", ErrRetrieval, change.Path, commit.Hash, err)
	}

	if len(data) == 0 {
		e.skip(commit, change, observability.SkipReasonEmpty, nil)

		return nil, nil
	}

	if int64(len(data)) > e.cfg.MaxFileSize {
		e.skip(commit, change, observability.SkipReasonTooLarge, nil)

		return nil, nil
	}

	facts, err := e.extractor.Extract(change.Path, data)
	if err != nil {
		e.skip(commit, change, observability.SkipReasonExtract, err)

		return nil, nil
	}

	// For modified files, only facts the change introduced are attributed
	// to this commit. A re-listed fact from the previous version stays with
	// the commit that first added it.
	if change.PrevHash != "" {
		prev, prevErr := e.previousFacts(ctx, commit, change)
		if prevErr != nil {
			return nil, prevErr
		}

		facts = subtractFacts(facts, prev)
	}

	entries := make([]analyze.Entry, 0, len(facts))

	for _, f := range facts {
		entries = append(entries, analyze.Entry{
			Category: f.Category,
			Key:      f.Key,
			AuthorID: tc.AuthorID,
			Tick:     tc.Tick,
		})
	}

	return entries, nil
}

// previousFacts extracts the facts of the file's pre-change version. An
// extraction failure on the old version yields an empty set; a retrieval
// failure is hard, like any other blob retrieval.
func (e *Extractor) previousFacts(
	ctx context.Context,
	commit gitsrc.Commit,
	change gitsrc.FileChange,
) ([]analyze.Fact, error) {
	prevChange := gitsrc.FileChange{Path: change.Path, Hash: change.PrevHash}

	data, err := e.blobs.GetBlob(ctx, commit.Hash, prevChange)
	if err != nil {
		return nil, fmt.Errorf("%w: previous %s in %s: %w", ErrRetrieval, change.Path, commit.Hash, err)
	}

	if len(data) == 0 || int64(len(data)) > e.cfg.MaxFileSize {
		return nil, nil
	}

	facts, extractErr := e.extractor.Extract(change.Path, data)
	if extractErr != nil {
		return nil, nil
	}

	return facts, nil
}

// subtractFacts returns the facts present in current but not in previous.
func subtractFacts(current, previous []analyze.Fact) []analyze.Fact {
	if len(previous) == 0 {
		return current
	}

	seen := make(map[analyze.Fact]bool, len(previous))

	for _, f := range previous {
		seen[f] = true
	}

	added := current[:0]

	for _, f := range current {
		if !seen[f] {
			added = append(added, f)
		}
	}

	return added
}

func (e *Extractor) skip(commit gitsrc.Commit, change gitsrc.FileChange, reason string, err error) {
	e.metrics.FileSkipped(reason)

	attrs := []any{
		slog.String("commit", commit.Hash),
		slog.String("path", change.Path),
		slog.String("reason", reason),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	e.logger.Debug("file skipped", attrs...)
}
