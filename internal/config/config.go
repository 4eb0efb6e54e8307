// Package config loads tickfold settings from a YAML file and environment
// variables, with CLI flags taking precedence at the command layer.
package config

import (
	"errors"
	"fmt"
)

// Default pipeline settings.
const (
	DefaultWorkers       = 4
	DefaultTickHours     = 24
	DefaultMaxFileSize   = "1MiB"
	DefaultBlobCacheSize = "256MiB"
)

// Default checkpoint settings.
const (
	DefaultCheckpointEnabled = true
	DefaultCheckpointResume  = true
)

// Validation errors.
var (
	ErrInvalidWorkers   = errors.New("workers must be positive")
	ErrInvalidTickHours = errors.New("tick_hours must be positive")
)

// Config is the root configuration.
type Config struct {
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
}

// PipelineConfig tunes extraction and partitioning.
type PipelineConfig struct {
	Workers       int    `mapstructure:"workers"`
	TickHours     int    `mapstructure:"tick_hours"`
	MaxFileSize   string `mapstructure:"max_file_size"`
	BlobCacheSize string `mapstructure:"blob_cache_size"`
	MemoryBudget  string `mapstructure:"memory_budget"`
	Partitions    int    `mapstructure:"partitions"`
	BestEffort    bool   `mapstructure:"best_effort"`
}

// CheckpointConfig tunes crash recovery.
type CheckpointConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	Resume    bool   `mapstructure:"resume"`
	ClearPrev bool   `mapstructure:"clear_prev"`
}

// OutputConfig tunes report serialization.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Pipeline.Workers)
	}

	if c.Pipeline.TickHours <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTickHours, c.Pipeline.TickHours)
	}

	return nil
}
