package engine

import (
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7GeneratorRebuildIDsSortByCreation(t *testing.T) {
	gen := UUIDv7Generator{}

	ids := make([]string, 200)
	for i := range ids {
		ids[i] = gen.Generate()
	}
	assert.True(t, slices.IsSorted(ids), "v7 ids should sort in creation order")
	assert.Len(t, slices.Compact(slices.Clone(ids)), len(ids))

	parsed, err := uuid.Parse(ids[0])
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, ids[0])
}

func TestUUIDv7GeneratorConcurrent(t *testing.T) {
	gen := UUIDv7Generator{}

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 64)
}

func TestRandomGeneratorLeaseTokens(t *testing.T) {
	gen := RandomGenerator{}

	a, b := gen.Generate(), gen.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("rb-1", "rb-2")

	assert.Equal(t, "rb-1", gen.Generate())
	assert.Equal(t, "rb-2", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.Generate() })

	assert.Panics(t, func() { NewFixedGenerator().Generate() })
}
