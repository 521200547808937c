package condition

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces node ids for the editor. Injecting the generator
// keeps edits deterministic under test and avoids collisions under rapid
// successive edits.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random UUID node ids.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}

// SequenceGenerator generates prefix-N ids from a counter. Intended for
// tests and tooling that need predictable ids.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator creates a generator producing prefix-1, prefix-2, ...
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewID implements IDGenerator.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
