package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tickfold/tickfold/internal/checkpoint"
	"github.com/tickfold/tickfold/internal/extract"
	"github.com/tickfold/tickfold/internal/gitsrc"
	"github.com/tickfold/tickfold/internal/hibernate"
	"github.com/tickfold/tickfold/internal/observability"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// Pipeline folds a sequence of commits into a tick store, sweeping cold
// ticks to disk and saving checkpoints on cadence. Hibernation and
// checkpointing are optional; a nil controller or manager disables them.
type Pipeline struct {
	Extractor   *extract.Extractor
	Store       *tickstore.Store
	Hibernation *hibernate.Controller
	Checkpoints *checkpoint.Manager
	RepoPath    string
	Metrics     *observability.EngineMetrics
	Logger      *slog.Logger
}

// Run processes the given commits in order. On cancellation it saves a final
// checkpoint before returning, so the interrupted run can resume from the
// last folded commit.
func (p *Pipeline) Run(ctx context.Context, commits []gitsrc.Commit) error {
	logger := observability.OrDiscard(p.Logger)

	sinceLastSave := 0
	lastSave := time.Now()

	for i, commit := range commits {
		if err := ctx.Err(); err != nil {
			saveErr := p.saveCheckpoint(ctx)
			if saveErr != nil {
				logger.WarnContext(ctx, "checkpoint on cancellation failed", "error", saveErr)
			}

			return err
		}

		tc, err := p.Extractor.ExtractCommit(ctx, commit)
		if err != nil {
			return fmt.Errorf("extract commit %s: %w", commit.Hash, err)
		}

		foldErr := p.Store.Fold(tc)
		if foldErr != nil {
			return fmt.Errorf("fold commit %s: %w", commit.Hash, foldErr)
		}

		if p.Hibernation != nil {
			hibErr := p.Hibernation.MaybeHibernate(ctx, p.Store)
			if hibErr != nil {
				return fmt.Errorf("hibernate after commit %s: %w", commit.Hash, hibErr)
			}
		}

		p.Metrics.ResidentBytes(p.Store.ResidentSize())

		sinceLastSave++

		if p.Checkpoints != nil && p.Checkpoints.ShouldSave(sinceLastSave, lastSave) {
			saveErr := p.saveCheckpoint(ctx)
			if saveErr != nil {
				return fmt.Errorf("checkpoint after commit %s: %w", commit.Hash, saveErr)
			}

			sinceLastSave = 0
			lastSave = time.Now()

			logger.DebugContext(ctx, "checkpoint saved",
				"commits", i+1,
				"cursor", p.Store.Cursor().Index)
		}
	}

	return nil
}

// saveCheckpoint writes the store state and emits a trace event. No-op when
// checkpointing is disabled.
func (p *Pipeline) saveCheckpoint(ctx context.Context) error {
	if p.Checkpoints == nil {
		return nil
	}

	err := p.Checkpoints.Save(p.Store, p.RepoPath)
	if err != nil {
		return err
	}

	p.Metrics.CheckpointSaved()

	cursor := p.Store.Cursor()

	trace.SpanFromContext(ctx).AddEvent("checkpoint.saved", trace.WithAttributes(
		attribute.Int("cursor.index", cursor.Index),
		attribute.String("cursor.hash", cursor.Hash),
	))

	return nil
}
