package lifecycle

import "github.com/stickycheZ101/HardLight/pkg/core"

// ClaimMessage asks to start the offered mission Index on Station.
type ClaimMessage struct {
	Station     core.StationID
	Console     core.ConsoleID
	Index       core.MissionIndex
	Coordinates string
}

// FinishMessage ends the active mission of Station early.
type FinishMessage struct {
	Station core.StationID
	Success bool
}

// RefreshMessage forces a console push without mutating state.
type RefreshMessage struct {
	Station core.StationID
}

// RegenerateMessage forces a new batch for Station.
type RegenerateMessage struct {
	Station core.StationID
}

// StationAddedMessage registers a new station.
type StationAddedMessage struct {
	Station core.StationID
}

// StationRemovedMessage signals that a station was destroyed.
type StationRemovedMessage struct {
	Station core.StationID
}

// WorldShutdownMessage signals that a mission world went away (timeout,
// map deletion) without an explicit finish.
type WorldShutdownMessage struct {
	World core.WorldID
}

// spawnCompleteEvent is raised by the controller itself when it reaps a
// terminal spawn job.
type spawnCompleteEvent struct {
	Station core.StationID
	Index   core.MissionIndex
	Success bool
	Err     error
}

// TransitChangedMessage reports a station entering or leaving FTL.
type TransitChangedMessage struct {
	Station   core.StationID
	InTransit bool
}

// ObjectiveCompletedMessage marks the objective of a mission world as done.
// The expedition still ends through Finish or WorldShutdown.
type ObjectiveCompletedMessage struct {
	World core.WorldID
}
