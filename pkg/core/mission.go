// pkg/core/mission.go
package core

import "fmt"

// StationID identifies the persistent entity that owns one expedition cycle.
type StationID string

// ConsoleID identifies an expedition console.
type ConsoleID string

// WorldID identifies a spawned mission world.
type WorldID string

// DifficultyID references an entry of the difficulty catalog.
type DifficultyID string

// MissionIndex is the index of a mission inside the current batch.
// Indices are only unique within one batch.
type MissionIndex uint16

// MissionType is the kind of objective a mission world is generated with.
type MissionType uint8

const (
	MissionTypeDestruction MissionType = iota
	MissionTypeElimination

	// MissionTypeMax is the last valid mission type; sampling is uniform over [0, MissionTypeMax].
	MissionTypeMax = MissionTypeElimination
)

func (t MissionType) String() string {
	switch t {
	case MissionTypeDestruction:
		return "destruction"
	case MissionTypeElimination:
		return "elimination"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Difficulty is one entry of the difficulty catalog. Order biases the
// position of the difficulty in a generated batch (ascending).
type Difficulty struct {
	ID    DifficultyID `json:"id" mapstructure:"id"`
	Order int          `json:"order" mapstructure:"order"`
}

// MissionParams describes one offered mission.
type MissionParams struct {
	Index      MissionIndex `json:"index"`
	Type       MissionType  `json:"missionType"`
	Seed       int32        `json:"seed"`
	Difficulty DifficultyID `json:"difficulty"`
}

// Placement is where something can be spawned next to an entity.
type Placement struct {
	Parent string  `json:"parent"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Console is an expedition console as seen by the scheduler.
type Console struct {
	ID        ConsoleID
	Station   StationID
	Placement *Placement // nil when the console has no transform
}
