package core

import (
	"strconv"
	"sync"
	"time"
)

// idGenerator issues note ids derived from the millisecond clock. Ids issued by
// one generator strictly increase, so two saves in the same millisecond still
// receive distinct ids. Ids are not coordinated across processes.
type idGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newIDGenerator(now func() time.Time) *idGenerator {
	return &idGenerator{now: now}
}

func (g *idGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli()
	if ts <= g.last {
		ts = g.last + 1
	}
	g.last = ts
	return strconv.FormatInt(ts, 10)
}
