// pkg/core/events.go
package core

import "time"

// EventKind classifies an expedition history record.
type EventKind string

const (
	EventMissionsGenerated EventKind = "missions_generated"
	EventClaimed           EventKind = "claimed"
	EventSpawned           EventKind = "spawned"
	EventSpawnFailed       EventKind = "spawn_failed"
	EventCompleted         EventKind = "completed"
	EventFailed            EventKind = "failed"
	EventOfferResumed      EventKind = "offer_resumed"
	EventStationRemoved    EventKind = "station_removed"
)

// ExpeditionEvent is one auditable step of a station's expedition cycle.
// It answers "why is this station on cooldown" after the fact.
type ExpeditionEvent struct {
	ID        uint
	Time      time.Time
	Station   StationID
	Kind      EventKind
	Mission   *MissionParams // set for claim, spawn and finish events
	Console   ConsoleID
	NextOffer time.Time
	Cooldown  time.Duration
	Detail    string
}
