// Package model holds the gorm table structures of the expedition history.
package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SchedulerInfo{},
	&ExpeditionEvent{},
	&SchedulerPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SchedulerInfo identifies the scheduler instance that owns the database.
type SchedulerInfo struct {
	gorm.Model
	InstanceName  string `json:"instanceName" gorm:"size:127"`
	Description   string `json:"description" gorm:"size:255"`
	SchemaVersion int    `json:"schemaVersion"`
}

func (*SchedulerInfo) TableName() string {
	return "scheduler_infos"
}

// SchedulerPerformance is one load sample of the tick loop.
type SchedulerPerformance struct {
	Time                time.Time `json:"time" gorm:"index:idx_perf_time"`
	Tick                uint64    `json:"tick"`
	Stations            int       `json:"stations"`
	QueueLength         int       `json:"queueLength"`
	TrackedJobs         int       `json:"trackedJobs"`
	Worlds              int       `json:"worlds"`
	PendingCommands     int       `json:"pendingCommands"`
	TickTimeMs          float32   `json:"tickTimeMs"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

func (*SchedulerPerformance) TableName() string {
	return "scheduler_performances"
}

////////////////////////
// EXPEDITION HISTORY
////////////////////////

// ExpeditionEvent is one row of a station's audit trail. Mission is the
// claimed, spawned or finished mission serialized as JSON, null otherwise.
type ExpeditionEvent struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time      `json:"time" gorm:"index:idx_expedition_event_time"`
	Station     string         `json:"station" gorm:"size:127;index:idx_expedition_event_station"`
	Kind        string         `json:"kind" gorm:"size:32;index:idx_expedition_event_kind"`
	Mission     datatypes.JSON `json:"mission"`
	Console     string         `json:"console" gorm:"size:127"`
	NextOffer   time.Time      `json:"nextOffer"`
	CooldownSec float64        `json:"cooldownSec"`
	Detail      string         `json:"detail" gorm:"size:512"`
}

func (*ExpeditionEvent) TableName() string {
	return "expedition_events"
}
