// Package storage defines the expedition history backends.
package storage

import (
	"errors"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// ErrClosed is returned when recording into a closed backend.
var ErrClosed = errors.New("storage backend closed")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// RecordEvent appends to a station's audit trail. It must not block the
	// tick for longer than a queue push.
	RecordEvent(e *core.ExpeditionEvent) error

	// History returns up to limit of a station's most recent events,
	// newest first. limit <= 0 returns everything.
	History(station core.StationID, limit int) ([]core.ExpeditionEvent, error)
}

// PerformanceRecorder is an optional interface for backends that keep
// tick load samples next to the history.
type PerformanceRecorder interface {
	RecordPerformance(p core.PerformanceSample) error
}

// Exportable is an optional interface for backends that write their
// history to a file on close.
type Exportable interface {
	GetExportedFilePath() string
}
