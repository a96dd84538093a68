package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates prefix-1, prefix-2, ... without limit.
//
// Unlike engine.FixedGenerator, which returns a declared list and panics
// when it runs out, this generator suits tests that do not care how many
// ids they draw, such as lease tokens across retries.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix means "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
