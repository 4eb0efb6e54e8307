package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfold/tickfold/internal/config"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	n, err := parseSize("512MB")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1000*1000), n)

	n, err = parseSize("1GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)

	n, err = parseSize("")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseSize("many bytes")
	require.ErrorIs(t, err, ErrInvalidSizeFormat)
}

func TestPartitionCount_ExplicitFlagWins(t *testing.T) {
	t.Parallel()

	rc := &RunCommand{partitions: 4}
	assert.Equal(t, 4, rc.partitionCount(100, 0))
}

func TestPartitionCount_SmallHistorySequential(t *testing.T) {
	t.Parallel()

	rc := &RunCommand{}
	assert.Equal(t, 1, rc.partitionCount(500, 0))
}

func TestPartitionCount_LargeHistoryPartitions(t *testing.T) {
	t.Parallel()

	rc := &RunCommand{}
	assert.Greater(t, rc.partitionCount(100000, 0), 1)
}

func TestApplyConfig_FillsUnsetFlags(t *testing.T) {
	t.Parallel()

	rc := &RunCommand{}
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			Workers:    8,
			TickHours:  12,
			Partitions: 3,
			BestEffort: true,
		},
		Checkpoint: config.CheckpointConfig{Enabled: true, Dir: "/tmp/ckpt"},
		Output:     config.OutputConfig{Format: "json"},
	}

	rc.applyConfig(&cobra.Command{}, cfg)

	assert.Equal(t, 8, rc.workers)
	assert.Equal(t, 12, rc.tickHours)
	assert.Equal(t, 3, rc.partitions)
	assert.True(t, rc.bestEffort)
	assert.True(t, rc.checkpointOn)
	assert.Equal(t, "/tmp/ckpt", rc.checkpointDir)
	assert.Equal(t, "json", rc.format)
}

func TestNewRunCommand_Flags(t *testing.T) {
	t.Parallel()

	verbose := false
	cmd := NewRunCommand(&verbose)

	for _, flag := range []string{
		"config", "format", "workers", "tick-hours", "max-file-size", "blob-cache-size",
		"memory-budget", "partitions", "best-effort",
		"checkpoint", "checkpoint-dir", "resume", "clear-checkpoint",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "missing flag %s", flag)
	}
}
