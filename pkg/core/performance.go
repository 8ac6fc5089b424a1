package core

import "time"

// PerformanceSample is one measurement of the tick loop's load.
type PerformanceSample struct {
	Time            time.Time
	Tick            uint64
	Stations        int
	QueueLength     int
	TrackedJobs     int
	Worlds          int
	PendingCommands int
	TickTime        time.Duration
	LastWrite       time.Duration // last history flush, 0 if unknown
}
