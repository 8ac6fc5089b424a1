package core

import "fmt"

// WorldStage is the progress of a mission world through generation.
type WorldStage uint8

const (
	StageSetup WorldStage = iota
	StageDungeon
	StageBiome
	StageStructures
	StageReady
)

func (s WorldStage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StageDungeon:
		return "dungeon"
	case StageBiome:
		return "biome"
	case StageStructures:
		return "structures"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// MissionWorld is the runtime entity created by a successful spawn job.
type MissionWorld struct {
	ID          WorldID
	Station     StationID
	Console     ConsoleID // originating console, "" if unknown
	Coordinates string    // coordinates-disk artifact used for the spawn, if any
	Params      MissionParams
	Stage       WorldStage
	Completed   bool // set by game logic when the mission concludes
}
