package mocks

import (
	"fmt"
	"sync"

	"github.com/Belogorec/marsu-bot2/internal/dependencies/idgen"
)

// MockIDGenerator returns queued IDs, then sequential fallbacks
type MockIDGenerator struct {
	mu     sync.Mutex
	queued []string
	issued int
}

// Ensure MockIDGenerator implements Generator
var _ idgen.Generator = (*MockIDGenerator)(nil)

// NewMockIDGenerator creates a new MockIDGenerator
func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

// NewID returns the next queued ID, or "id-<n>" once the queue is empty
func (g *MockIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	if len(g.queued) > 0 {
		id := g.queued[0]
		g.queued = g.queued[1:]
		return id
	}
	return fmt.Sprintf("id-%d", g.issued)
}

// Queue adds IDs to be returned by NewID
func (g *MockIDGenerator) Queue(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued = append(g.queued, ids...)
}
