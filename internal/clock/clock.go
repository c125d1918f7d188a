package clock

import (
	"sync"
	"time"
)

// Clock abstracts the time source so expiry and late-window decisions
// are testable. Production code always uses System.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

// Manual is a hand-advanced clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
