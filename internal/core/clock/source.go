package clock

import (
	"sync"
	"time"
)

// Source supplies the current time to the synchronizer.
type Source interface {
	Now() time.Time
}

// MonotonicSource reads the system clock with its monotonic reading.
type MonotonicSource struct{}

func (MonotonicSource) Now() time.Time { return time.Now() }

// ManualSource is a Source advanced explicitly by tests.
type ManualSource struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualSource(start time.Time) *ManualSource {
	return &ManualSource{now: start}
}

func (m *ManualSource) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *ManualSource) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *ManualSource) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
