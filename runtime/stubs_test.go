package runtime_test

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a fixed time until advanced.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(now time.Time) *StubClock {
	return &StubClock{now: now}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// StubIDGenerator hands out the given IDs in order, then prefix-N.
type StubIDGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

func NewStubIDGenerator(prefix string, ids ...string) *StubIDGenerator {
	return &StubIDGenerator{ids: ids, prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) > 0 {
		id := g.ids[0]
		g.ids = g.ids[1:]
		return id
	}
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}
