package core

import "time"

// ConsoleSnapshot is the immutable view of a station's expedition state
// pushed to the console UI.
type ConsoleSnapshot struct {
	Station          StationID       `json:"station"`
	NextOffer        time.Time       `json:"nextOffer"`
	Claimed          bool            `json:"claimed"`
	Cooldown         bool            `json:"cooldown"`
	CooldownDuration time.Duration   `json:"cooldownDuration"`
	ActiveMission    MissionIndex    `json:"activeMission"`
	HasActiveMission bool            `json:"hasActiveMission"`
	Missions         []MissionParams `json:"missions"`
	CanFinish        bool            `json:"canFinish"`
}
