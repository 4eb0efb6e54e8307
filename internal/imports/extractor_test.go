package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_GoFile(t *testing.T) {
	t.Parallel()

	src := []byte("package main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n")

	x := NewExtractor()
	require.True(t, x.Supported("main.go"))

	facts, err := x.Extract("main.go", src)
	require.NoError(t, err)

	keys := make([]string, 0, len(facts))

	for _, f := range facts {
		assert.Equal(t, "go", f.Category)

		keys = append(keys, f.Key)
	}

	assert.ElementsMatch(t, []string{"fmt", "os"}, keys)
}

func TestExtractor_NoImports(t *testing.T) {
	t.Parallel()

	x := NewExtractor()

	facts, err := x.Extract("empty.go", []byte("package empty\n"))
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestExtractor_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	x := NewExtractor()
	assert.False(t, x.Supported("picture.jpeg"))
}
