package lifecycle

import (
	"time"

	"github.com/stickycheZ101/HardLight/internal/jobqueue"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// SpawnRequest is everything the world generator needs for one mission.
type SpawnRequest struct {
	Params      core.MissionParams
	Station     core.StationID
	Console     core.ConsoleID
	Coordinates string
	TravelTime  time.Duration
}

// WorldJob is the cooperative work that materializes a mission world.
// World returns the created world once the job has finished successfully.
type WorldJob interface {
	jobqueue.Work
	World() *core.MissionWorld
}

// WorldSpawner is the world-generation collaborator.
type WorldSpawner interface {
	SpawnWorld(req SpawnRequest) (WorldJob, error)
	// Despawn tears down a world that is no longer bound to a station.
	Despawn(world core.WorldID)
}

// RewardSpawner places reward items. Failures are logged, never fatal.
type RewardSpawner interface {
	SpawnReward(proto string, at core.Placement) error
}

// Announcer delivers user-facing notifications, fire-and-forget.
type Announcer interface {
	Announce(target core.StationID, message string)
}

// TransitChecker reports whether a station's grid is in FTL.
type TransitChecker interface {
	InTransit(station core.StationID) bool
}

// ConsoleDirectory resolves console references.
type ConsoleDirectory interface {
	Lookup(id core.ConsoleID) (core.Console, bool)
}

// Recorder receives the expedition audit trail.
type Recorder interface {
	RecordEvent(e *core.ExpeditionEvent) error
}

// Announcement texts.
const (
	MsgMissionCompleted = "Expedition mission completed."
	MsgMissionFailed    = "Expedition mission failed."
)
