package tickstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/imports"
)

func TestSnapshot_Roundtrip(t *testing.T) {
	t.Parallel()

	s := New(imports.NewAccumulator)

	require.NoError(t, s.Fold(tc("c1", 0, 0, "fmt")))
	require.NoError(t, s.Fold(tc("c2", 1, 1, "os", "io")))

	snap, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(imports.NewAccumulator, snap)
	require.NoError(t, err)

	assert.Equal(t, s.Cursor(), restored.Cursor())
	assert.Equal(t, s.Ticks(), restored.Ticks())
	assert.Equal(t, counts(t, s, 0), counts(t, restored, 0))
	assert.Equal(t, counts(t, s, 1), counts(t, restored, 1))
}

func TestSnapshot_BootsHibernatedTicks(t *testing.T) {
	t.Parallel()

	s := New(imports.NewAccumulator)

	require.NoError(t, s.Fold(tc("c1", 0, 0, "fmt")))
	require.NoError(t, s.Fold(tc("c2", 1, 0, "os")))

	acc, ok := s.Evict(0)
	require.True(t, ok)

	s.SetBooter(stubBooter{acc: acc})

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Ticks, 2)
	assert.NotEmpty(t, snap.Ticks[0])
}

type stubBooter struct {
	acc analyze.Accumulator
}

func (b stubBooter) Boot(int) (analyze.Accumulator, error) {
	return b.acc, nil
}
