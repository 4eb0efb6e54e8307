package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tickfold/tickfold/internal/gitsrc"
	"github.com/tickfold/tickfold/internal/observability"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// ErrNoPartitions is returned when a parallel run produced no usable
// partition results.
var ErrNoPartitions = errors.New("no partition results")

// PipelineBuilder constructs a fresh pipeline for one partition. Each
// partition gets its own store and extraction state; only read-only
// components (the repository, the identity table) may be shared.
type PipelineBuilder func(index int, bounds Bounds) (*Pipeline, error)

// Coordinator forks a commit range into contiguous disjoint partitions,
// runs them concurrently, and reduces the partial stores back into one.
type Coordinator struct {
	// Partitions overrides the planner's memory-derived partition count
	// when positive.
	Partitions int

	// MemoryBudget feeds the planner when Partitions is zero.
	MemoryBudget int64

	// BestEffort keeps going when a partition fails, merging the
	// partitions that succeeded and returning the collected failures.
	// By default the first failure cancels the remaining partitions.
	BestEffort bool

	Build  PipelineBuilder
	Logger *slog.Logger
}

// Run processes the commits across partitions and returns the merged store.
// With BestEffort set, a non-nil store may be returned alongside a non-nil
// joined error describing the failed partitions.
func (c *Coordinator) Run(ctx context.Context, commits []gitsrc.Commit) (*tickstore.Store, error) {
	planner := Planner{
		TotalCommits: len(commits),
		MemoryBudget: c.MemoryBudget,
		Partitions:   c.Partitions,
	}

	bounds := planner.Plan()
	if len(bounds) == 0 {
		return nil, ErrNoPartitions
	}

	logger := observability.OrDiscard(c.Logger)

	logger.InfoContext(ctx, "forking history",
		"commits", len(commits),
		"partitions", len(bounds))

	stores, runErr := c.runPartitions(ctx, commits, bounds)

	if runErr != nil && !c.BestEffort {
		return nil, runErr
	}

	merged, mergeErr := reduce(stores)
	if mergeErr != nil {
		return nil, errors.Join(runErr, mergeErr)
	}

	return merged, runErr
}

// runPartitions executes every partition and returns the per-partition
// stores in partition order. Failed partitions leave a nil slot.
func (c *Coordinator) runPartitions(
	ctx context.Context,
	commits []gitsrc.Commit,
	bounds []Bounds,
) ([]*tickstore.Store, error) {
	stores := make([]*tickstore.Store, len(bounds))

	if c.BestEffort {
		return stores, c.runBestEffort(ctx, commits, bounds, stores)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	for i, b := range bounds {
		g.Go(func() error {
			store, err := c.runOne(groupCtx, i, b, commits[b.Start:b.End])
			if err != nil {
				return err
			}

			stores[i] = store

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stores, err
	}

	return stores, nil
}

// runBestEffort runs every partition to completion regardless of failures
// elsewhere and joins the errors.
func (c *Coordinator) runBestEffort(
	ctx context.Context,
	commits []gitsrc.Commit,
	bounds []Bounds,
	stores []*tickstore.Store,
) error {
	errs := make([]error, len(bounds))

	var wg sync.WaitGroup

	wg.Add(len(bounds))

	for i, b := range bounds {
		go func() {
			defer wg.Done()

			store, err := c.runOne(ctx, i, b, commits[b.Start:b.End])
			if err != nil {
				errs[i] = fmt.Errorf("partition %d [%d, %d): %w", i, b.Start, b.End, err)

				return
			}

			stores[i] = store
		}()
	}

	wg.Wait()

	return errors.Join(errs...)
}

// runOne builds and runs the pipeline for a single partition.
func (c *Coordinator) runOne(
	ctx context.Context,
	index int,
	bounds Bounds,
	commits []gitsrc.Commit,
) (*tickstore.Store, error) {
	pipeline, err := c.Build(index, bounds)
	if err != nil {
		return nil, fmt.Errorf("build partition %d: %w", index, err)
	}

	runErr := pipeline.Run(ctx, commits)
	if runErr != nil {
		return nil, runErr
	}

	entry := CapturePartitionMemory(index, bounds,
		pipeline.Store.ResidentSize(), len(pipeline.Store.Ticks())-len(pipeline.Store.ResidentTicks()))
	LogPartitionMemory(ctx, observability.OrDiscard(c.Logger), entry)

	return pipeline.Store, nil
}

// reduce merges partition stores pairwise in partition order. Merge is
// associative, so the sequential left fold matches any other grouping.
func reduce(stores []*tickstore.Store) (*tickstore.Store, error) {
	var merged *tickstore.Store

	for i, store := range stores {
		if store == nil {
			continue
		}

		if merged == nil {
			merged = store

			continue
		}

		err := merged.Merge(store)
		if err != nil {
			return nil, fmt.Errorf("merge partition %d: %w", i, err)
		}
	}

	if merged == nil {
		return nil, ErrNoPartitions
	}

	return merged, nil
}
