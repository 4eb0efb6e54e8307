// Package commands implements the tickfold CLI commands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/checkpoint"
	"github.com/tickfold/tickfold/internal/config"
	"github.com/tickfold/tickfold/internal/extract"
	"github.com/tickfold/tickfold/internal/gitsrc"
	"github.com/tickfold/tickfold/internal/hibernate"
	"github.com/tickfold/tickfold/internal/imports"
	"github.com/tickfold/tickfold/internal/observability"
	"github.com/tickfold/tickfold/internal/persist"
	"github.com/tickfold/tickfold/internal/report"
	"github.com/tickfold/tickfold/internal/streaming"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// Sentinel errors for the run command.
var (
	ErrInvalidSizeFormat = errors.New("invalid size format")
	ErrInvalidFormat     = errors.New("invalid output format")
	ErrEmptyHistory      = errors.New("repository has no commits")
)

// hoursPerTick converts the --tick-hours flag to a duration.
const hoursPerTick = time.Hour

// maxInt64 bounds safe conversion from uint64 flag values.
const maxInt64 = int64(^uint64(0) >> 1)

// RunCommand holds the configuration for the run command.
type RunCommand struct {
	verbose *bool

	configPath string
	format     string
	workers    int
	tickHours  int
	maxFile    string
	blobCache  string
	memBudget  string
	partitions int
	bestEffort bool

	checkpointOn  bool
	checkpointDir string
	resume        bool
	clearPrev     bool
}

// NewRunCommand creates and configures the run command.
func NewRunCommand(verbose *bool) *cobra.Command {
	rc := &RunCommand{verbose: verbose}

	cobraCmd := &cobra.Command{
		Use:   "run [repository]",
		Short: "Aggregate import usage per developer over repository history",
		Long: `Run streams the repository's commit history through import extraction
and aggregates per-developer, per-language import counts into time ticks.

Large histories can be forked into partitions processed in parallel and
merged afterwards. Interrupted runs resume from the last checkpoint.`,
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	cobraCmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: .tickfold.yaml in CWD or $HOME)")
	cobraCmd.Flags().StringVarP(&rc.format, "format", "f", "yaml", "Output format (yaml, json)")
	cobraCmd.Flags().IntVar(&rc.workers, "workers", 0, "Extraction workers per partition (0 = default)")
	cobraCmd.Flags().IntVar(&rc.tickHours, "tick-hours", 24, "Hours per tick")
	cobraCmd.Flags().StringVar(&rc.maxFile, "max-file-size", "", "Per-file size cutoff (e.g., '1MB'; empty = default)")
	cobraCmd.Flags().StringVar(&rc.blobCache, "blob-cache-size", "", "Max blob cache size (e.g., '256MB'; empty = default)")
	cobraCmd.Flags().StringVar(&rc.memBudget, "memory-budget", "", "Memory budget (e.g., '512MB', '2GB'; empty = unbounded)")
	cobraCmd.Flags().IntVar(&rc.partitions, "partitions", 0, "Partition count for parallel execution (0 = auto)")
	cobraCmd.Flags().BoolVar(&rc.bestEffort, "best-effort", false, "Keep partial results when a partition fails")

	// Checkpoint flags.
	cobraCmd.Flags().BoolVar(&rc.checkpointOn, "checkpoint", true, "Enable checkpointing for crash recovery")
	cobraCmd.Flags().StringVar(&rc.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default: ~/.tickfold/checkpoints)")
	cobraCmd.Flags().BoolVar(&rc.resume, "resume", true, "Resume from checkpoint if available")
	cobraCmd.Flags().BoolVar(&rc.clearPrev, "clear-checkpoint", false, "Clear existing checkpoint before run")

	return cobraCmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	repoPath := "."
	if len(args) > 0 {
		repoPath = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rc.applyConfig(cmd, cfg)

	logger := rc.newLogger()
	metrics := observability.NewEngineMetrics(prometheus.NewRegistry())

	memBudget, err := parseSize(rc.memBudget)
	if err != nil {
		return err
	}

	repo, err := gitsrc.Open(repoPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	commits, err := repo.History(ctx)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if len(commits) == 0 {
		return ErrEmptyHistory
	}

	people := gitsrc.PeopleFromCommits(commits)
	tickSize := time.Duration(rc.tickHours) * hoursPerTick
	ticks := gitsrc.NewTickResolver(commits[0].When, tickSize)

	blobCacheSize, err := parseSize(rc.blobCache)
	if err != nil {
		return err
	}

	maxFileSize, err := parseSize(rc.maxFile)
	if err != nil {
		return err
	}

	blobs := gitsrc.NewCachedBlobReader(repo, blobCacheSize)
	extractor := imports.NewExtractor()

	spillDir, err := os.MkdirTemp("", "tickfold-spill-*")
	if err != nil {
		return fmt.Errorf("create spill dir: %w", err)
	}

	defer os.RemoveAll(spillDir)

	env := &runEnv{
		repoPath:    repo.Path(),
		commits:     commits,
		people:      people,
		ticks:       ticks,
		blobs:       blobs,
		extractor:   extractor,
		factory:     imports.NewAccumulator,
		spillDir:    spillDir,
		memBudget:   memBudget,
		maxFileSize: maxFileSize,
		workers:     rc.workers,
		metrics:     metrics,
		logger:      logger,
	}

	partitions := rc.partitionCount(len(commits), memBudget)

	var store *tickstore.Store

	if partitions > 1 {
		store, err = rc.runParallel(ctx, env, partitions)
	} else {
		store, err = rc.runSequential(ctx, env)
	}

	if err != nil && (store == nil || !rc.bestEffort) {
		return err
	}

	if err != nil {
		logger.WarnContext(ctx, "partial result", "error", err)
	} else {
		store.SetCursor(tickstore.Cursor{
			Index: len(commits),
			Hash:  commits[len(commits)-1].Hash,
		})
	}

	builder := report.Builder{
		Name:        "imports",
		TickSize:    tickSize,
		AuthorIndex: people.Index(),
		Flatten:     imports.BuildMap,
	}

	result, buildErr := builder.Build(store)
	if buildErr != nil {
		return fmt.Errorf("build report: %w", buildErr)
	}

	logger.InfoContext(ctx, "run complete",
		"commits", len(commits),
		"ticks", store.Len(),
		"authors", people.Len(),
		"blob_cache_hits", blobs.CacheHits(),
		"blob_cache_misses", blobs.CacheMisses())

	return rc.output(result)
}

// applyConfig fills in settings from the config file for every flag the
// user did not set explicitly. Explicit flags always win.
func (rc *RunCommand) applyConfig(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if !changed("format") {
		rc.format = cfg.Output.Format
	}

	if !changed("workers") {
		rc.workers = cfg.Pipeline.Workers
	}

	if !changed("tick-hours") {
		rc.tickHours = cfg.Pipeline.TickHours
	}

	if !changed("max-file-size") {
		rc.maxFile = cfg.Pipeline.MaxFileSize
	}

	if !changed("blob-cache-size") {
		rc.blobCache = cfg.Pipeline.BlobCacheSize
	}

	if !changed("memory-budget") {
		rc.memBudget = cfg.Pipeline.MemoryBudget
	}

	if !changed("partitions") {
		rc.partitions = cfg.Pipeline.Partitions
	}

	if !changed("best-effort") {
		rc.bestEffort = cfg.Pipeline.BestEffort
	}

	if !changed("checkpoint") {
		rc.checkpointOn = cfg.Checkpoint.Enabled
	}

	if !changed("checkpoint-dir") {
		rc.checkpointDir = cfg.Checkpoint.Dir
	}

	if !changed("resume") {
		rc.resume = cfg.Checkpoint.Resume
	}

	if !changed("clear-checkpoint") {
		rc.clearPrev = cfg.Checkpoint.ClearPrev
	}
}

// runEnv bundles the read-only components shared across partitions.
type runEnv struct {
	repoPath    string
	commits     []gitsrc.Commit
	people      *gitsrc.People
	ticks       *gitsrc.TickResolver
	blobs       gitsrc.BlobReader
	extractor   analyze.Extractor
	factory     analyze.Factory
	spillDir    string
	memBudget   int64
	maxFileSize int64
	workers     int
	metrics     *observability.EngineMetrics
	logger      *slog.Logger
}

// newPipeline assembles a pipeline with its own store and hibernation
// controller. The blob cache and identity table are shared; they are
// concurrency-safe and read-mostly.
func (env *runEnv) newPipeline(index int, threshold int64) *streaming.Pipeline {
	store := tickstore.New(env.factory)

	controller := hibernate.NewController(
		threshold,
		&persist.FSStore{Dir: filepath.Join(env.spillDir, fmt.Sprintf("part_%03d", index))},
		env.factory,
		env.metrics,
		env.logger,
	)

	store.SetBooter(controller)

	cfg := extract.Config{
		Goroutines:  env.workers,
		MaxFileSize: env.maxFileSize,
	}

	tce := extract.New(cfg, env.blobs, env.extractor, env.ticks, env.people, env.metrics, env.logger)

	return &streaming.Pipeline{
		Extractor:   tce,
		Store:       store,
		Hibernation: controller,
		RepoPath:    env.repoPath,
		Metrics:     env.metrics,
		Logger:      env.logger,
	}
}

// runSequential processes the whole history in one pipeline, with
// checkpointing and resume.
func (rc *RunCommand) runSequential(ctx context.Context, env *runEnv) (*tickstore.Store, error) {
	manager := rc.initCheckpointManager(ctx, env)

	pipeline := env.newPipeline(0, env.memBudget)
	pipeline.Checkpoints = manager

	remaining := env.commits

	if manager != nil && rc.resume && manager.Exists() {
		resumed, skip := rc.tryResume(ctx, env, manager)
		if resumed != nil {
			resumed.SetBooter(pipeline.Store.Booter())
			pipeline.Store = resumed
			remaining = env.commits[skip:]

			env.logger.InfoContext(ctx, "resuming from checkpoint",
				"skipped_commits", skip,
				"remaining", len(remaining))
		}
	}

	err := pipeline.Run(ctx, remaining)
	if err != nil {
		return nil, err
	}

	// The run finished; the checkpoint is no longer needed.
	if manager != nil {
		clearErr := manager.Clear()
		if clearErr != nil {
			env.logger.WarnContext(ctx, "failed to clear checkpoint", "error", clearErr)
		}
	}

	return pipeline.Store, nil
}

// runParallel forks the history across partitions and merges the results.
// Partitioned runs do not checkpoint; a failed run restarts from scratch.
func (rc *RunCommand) runParallel(ctx context.Context, env *runEnv, partitions int) (*tickstore.Store, error) {
	threshold := env.memBudget
	if threshold > 0 {
		threshold /= int64(partitions)
	}

	coordinator := &streaming.Coordinator{
		Partitions: partitions,
		BestEffort: rc.bestEffort,
		Logger:     env.logger,
		Build: func(index int, _ streaming.Bounds) (*streaming.Pipeline, error) {
			return env.newPipeline(index, threshold), nil
		},
	}

	return coordinator.Run(ctx, env.commits)
}

// initCheckpointManager creates the checkpoint manager, honoring the
// clear-checkpoint flag. Returns nil when checkpointing is disabled.
func (rc *RunCommand) initCheckpointManager(ctx context.Context, env *runEnv) *checkpoint.Manager {
	if !rc.checkpointOn {
		return nil
	}

	dir := rc.checkpointDir
	if dir == "" {
		dir = checkpoint.DefaultDir()
	}

	manager := checkpoint.NewManager(dir, checkpoint.RepoHash(env.repoPath))

	if rc.clearPrev {
		clearErr := manager.Clear()
		if clearErr != nil {
			env.logger.WarnContext(ctx, "failed to clear checkpoint", "error", clearErr)
		}
	}

	return manager
}

// tryResume restores a store from the checkpoint when it matches the
// repository and the commit range. Any mismatch falls back to a fresh run.
func (rc *RunCommand) tryResume(
	ctx context.Context,
	env *runEnv,
	manager *checkpoint.Manager,
) (*tickstore.Store, int) {
	store, blob, err := manager.Restore(env.factory)
	if err != nil {
		env.logger.WarnContext(ctx, "checkpoint resume failed, starting fresh", "error", err)

		return nil, 0
	}

	if blob.RepoPath != env.repoPath {
		env.logger.WarnContext(ctx, "checkpoint belongs to another repository, starting fresh",
			"checkpoint_repo", blob.RepoPath)

		return nil, 0
	}

	skip := blob.Cursor.Index
	if skip <= 0 || skip > len(env.commits) {
		return nil, 0
	}

	// The cursor hash must match the commit at the cursor position, or the
	// history has been rewritten since the checkpoint.
	if env.commits[skip-1].Hash != blob.Cursor.Hash {
		env.logger.WarnContext(ctx, "checkpoint cursor does not match history, starting fresh",
			"cursor_hash", blob.Cursor.Hash,
			"commit_hash", env.commits[skip-1].Hash)

		return nil, 0
	}

	return store, skip
}

// partitionCount decides how many partitions to use. An explicit flag wins;
// otherwise the detector recommends partitioning for large histories.
func (rc *RunCommand) partitionCount(commitCount int, memBudget int64) int {
	if rc.partitions > 0 {
		return rc.partitions
	}

	detector := streaming.Detector{
		CommitCount:  commitCount,
		MemoryBudget: memBudget,
	}

	if detector.ShouldPartition() {
		planner := streaming.Planner{TotalCommits: commitCount, MemoryBudget: memBudget}

		return len(planner.Plan())
	}

	return 1
}

func (rc *RunCommand) newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rc.verbose != nil && *rc.verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	return slog.New(observability.NewTracingHandler(handler, "tickfold"))
}

func (rc *RunCommand) output(result analyze.Report) error {
	switch rc.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()

		return enc.Encode(result)
	default:
		return fmt.Errorf("%w: %q (want yaml or json)", ErrInvalidFormat, rc.format)
	}
}

// parseSize parses a human-readable size like "512MB". Empty means zero
// (use the default).
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSizeFormat, s, err)
	}

	if n > uint64(maxInt64) {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidSizeFormat, s)
	}

	return int64(n), nil
}
