// Package memory keeps the expedition history in process memory and
// exports it to JSON on close.
package memory

import (
	"sync"
	"time"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Backend stores per-station history in memory
type Backend struct {
	cfg config.MemoryConfig
	now func() time.Time

	history map[core.StationID][]core.ExpeditionEvent
	order   []core.StationID // first-seen order, for stable exports
	nextID  uint
	closed  bool

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		now:     time.Now,
		history: make(map[core.StationID][]core.ExpeditionEvent),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the history when an output directory is configured.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// RecordEvent appends the event to its station's history, dropping the
// oldest entries beyond MaxPerStation.
func (b *Backend) RecordEvent(e *core.ExpeditionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	b.nextID++
	e.ID = b.nextID

	events, seen := b.history[e.Station]
	if !seen {
		b.order = append(b.order, e.Station)
	}
	events = append(events, *e)
	if keep := b.cfg.MaxPerStation; keep > 0 && len(events) > keep {
		events = append(events[:0], events[len(events)-keep:]...)
	}
	b.history[e.Station] = events
	return nil
}

// History returns the station's most recent events, newest first.
func (b *Backend) History(station core.StationID, limit int) ([]core.ExpeditionEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.history[station]
	n := len(events)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]core.ExpeditionEvent, 0, n)
	for i := len(events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, events[i])
	}
	return out, nil
}

// Stations returns every station with recorded history.
func (b *Backend) Stations() []core.StationID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.StationID(nil), b.order...)
}

// GetExportedFilePath returns the path of the last export, "" if none.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
