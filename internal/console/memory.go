package console

import (
	"sync"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// MemorySink keeps the latest snapshot per station.
type MemorySink struct {
	mu     sync.RWMutex
	latest map[core.StationID]core.ConsoleSnapshot
	pushes map[core.StationID]int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		latest: make(map[core.StationID]core.ConsoleSnapshot),
		pushes: make(map[core.StationID]int),
	}
}

// Push stores s as the latest snapshot of its station.
func (m *MemorySink) Push(s core.ConsoleSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[s.Station] = s
	m.pushes[s.Station]++
}

// Latest returns the last snapshot pushed for station.
func (m *MemorySink) Latest(station core.StationID) (core.ConsoleSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latest[station]
	return s, ok
}

// Pushes returns how many snapshots were pushed for station.
func (m *MemorySink) Pushes(station core.StationID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pushes[station]
}
