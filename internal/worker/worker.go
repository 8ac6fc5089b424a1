// Package worker binds inbound commands to the expedition controller.
package worker

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/stickycheZ101/HardLight/internal/lifecycle"
	"github.com/stickycheZ101/HardLight/internal/parser"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Lifecycle is the part of the controller the handlers drive.
type Lifecycle interface {
	AddStation(msg lifecycle.StationAddedMessage)
	RemoveStation(msg lifecycle.StationRemovedMessage)
	Claim(msg lifecycle.ClaimMessage) error
	Finish(msg lifecycle.FinishMessage) error
	Refresh(msg lifecycle.RefreshMessage) (core.ConsoleSnapshot, error)
	Regenerate(msg lifecycle.RegenerateMessage) error
	WorldShutdown(msg lifecycle.WorldShutdownMessage)
	CompleteObjective(msg lifecycle.ObjectiveCompletedMessage) error
	SetTransit(msg lifecycle.TransitChangedMessage) error
	SetCooldown(cooldown time.Duration)
	SetFailedCooldown(cooldown time.Duration)
}

// ConsoleRegistry records console placements.
type ConsoleRegistry interface {
	Register(c core.Console)
	RemoveStation(station core.StationID)
}

// StatusProvider renders the latest scheduler status.
type StatusProvider interface {
	StatusJSON() (string, error)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Controller Lifecycle
	Parser     *parser.Parser
	Consoles   ConsoleRegistry
	Status     StatusProvider
	Logger     *slog.Logger

	// ConsoleRate limits refresh and regenerate requests per station.
	// Zero disables the limit.
	ConsoleRate  rate.Limit
	ConsoleBurst int
}

// ErrThrottled is returned when a station sends console requests faster
// than ConsoleRate allows.
var ErrThrottled = errors.New("console request throttled")

// Manager routes parsed commands to the controller
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	// touched only by deferred handlers
	limiters map[core.StationID]*rate.Limiter
}

// NewManager creates a new worker manager. backend may be nil.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	if deps.ConsoleRate > 0 && deps.ConsoleBurst <= 0 {
		deps.ConsoleBurst = 1
	}
	return &Manager{
		deps:     deps,
		backend:  backend,
		limiters: make(map[core.StationID]*rate.Limiter),
	}
}

// SetStatus installs the status provider. Call before RegisterHandlers.
func (m *Manager) SetStatus(p StatusProvider) {
	m.deps.Status = p
}

// allow reports whether station may issue another console request now.
func (m *Manager) allow(station core.StationID) bool {
	if m.deps.ConsoleRate <= 0 {
		return true
	}
	l, ok := m.limiters[station]
	if !ok {
		l = rate.NewLimiter(m.deps.ConsoleRate, m.deps.ConsoleBurst)
		m.limiters[station] = l
	}
	return l.Allow()
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}
