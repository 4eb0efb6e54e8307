package gitsrc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeople_ResolveAssignsDenseIDs(t *testing.T) {
	t.Parallel()

	p := NewPeople()

	assert.Equal(t, 0, p.Resolve("ana@dev"))
	assert.Equal(t, 1, p.Resolve("bob@dev"))
	assert.Equal(t, 0, p.Resolve("ana@dev"))
	assert.Equal(t, 2, p.Len())
}

func TestPeopleFromCommits_FirstSeenOrder(t *testing.T) {
	t.Parallel()

	commits := []Commit{
		{Hash: "c1", Author: "bob@dev", When: time.Now()},
		{Hash: "c2", Author: "ana@dev", When: time.Now()},
		{Hash: "c3", Author: "bob@dev", When: time.Now()},
	}

	p := PeopleFromCommits(commits)

	require.Equal(t, 2, p.Len())
	assert.Equal(t, 0, p.Resolve("bob@dev"))
	assert.Equal(t, 1, p.Resolve("ana@dev"))

	index := p.Index()
	assert.Equal(t, "bob@dev", index[0])
	assert.Equal(t, "ana@dev", index[1])
}

// TestPeople_ConcurrentResolve exercises the interner from many goroutines,
// the access pattern of parallel partitions sharing one table.
func TestPeople_ConcurrentResolve(t *testing.T) {
	t.Parallel()

	p := NewPeople()
	authors := []string{"a@dev", "b@dev", "c@dev", "d@dev"}

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				for _, a := range authors {
					p.Resolve(a)
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, len(authors), p.Len())
}
