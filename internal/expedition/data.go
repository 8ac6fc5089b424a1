// Package expedition holds the per-station expedition state record.
package expedition

import (
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Data is the expedition state of one station. It is owned by the tick
// goroutine; only the generating guard is safe to touch concurrently.
type Data struct {
	Station core.StationID

	// NextOffer is the single deadline of the station: once reached (and
	// not held by FTL) the batch is regenerated.
	NextOffer        time.Time
	Claimed          bool
	Cooldown         bool
	CooldownDuration time.Duration
	CanFinish        bool

	// Missions is the offered batch; empty while a mission is active.
	Missions  map[core.MissionIndex]core.MissionParams
	NextIndex core.MissionIndex

	activeMission core.MissionIndex
	hasActive     bool

	// held keeps the claimed batch so a failed spawn can offer it again
	held map[core.MissionIndex]core.MissionParams

	generating atomic.Bool
}

// NewData creates the record for a freshly created station. The first
// offer is due immediately.
func NewData(station core.StationID, now time.Time) *Data {
	return &Data{
		Station:   station,
		NextOffer: now,
		Missions:  make(map[core.MissionIndex]core.MissionParams),
	}
}

// ActiveMission returns the active mission index and whether one is set.
func (d *Data) ActiveMission() (core.MissionIndex, bool) {
	return d.activeMission, d.hasActive
}

// HasActiveMission reports whether a mission is claimed or running.
func (d *Data) HasActiveMission() bool {
	return d.hasActive
}

// IsActive reports whether idx is the current active mission. Events for
// any other index belong to a superseded cycle.
func (d *Data) IsActive(idx core.MissionIndex) bool {
	return d.hasActive && d.activeMission == idx
}

// Claim marks idx active and moves the offered batch aside. It returns the
// claimed mission and false if idx is not offered or a mission is active.
func (d *Data) Claim(idx core.MissionIndex) (core.MissionParams, bool) {
	if d.hasActive {
		return core.MissionParams{}, false
	}
	params, ok := d.Missions[idx]
	if !ok {
		return core.MissionParams{}, false
	}
	d.activeMission = idx
	d.hasActive = true
	d.Claimed = true
	d.held = d.Missions
	d.Missions = make(map[core.MissionIndex]core.MissionParams)
	return params, true
}

// Release clears the active mission and puts the held batch back on offer.
// Used when the spawn of the claimed mission did not succeed.
func (d *Data) Release() {
	d.clearActive()
	if d.held != nil {
		d.Missions = d.held
	}
	d.held = nil
}

// Activate drops the held batch once the claimed mission world exists.
func (d *Data) Activate() {
	d.held = nil
	d.CanFinish = true
}

// Conclude ends the active mission and starts a cooldown of the given length.
func (d *Data) Conclude(now time.Time, cooldown time.Duration) {
	d.clearActive()
	d.held = nil
	d.NextOffer = now.Add(cooldown)
	d.CooldownDuration = cooldown
	d.Cooldown = true
	clear(d.Missions)
}

func (d *Data) clearActive() {
	d.activeMission = 0
	d.hasActive = false
	d.Claimed = false
	d.CanFinish = false
}

// BeginGenerating sets the generating guard. It returns false if a
// generation is already in progress.
func (d *Data) BeginGenerating() bool {
	return d.generating.CompareAndSwap(false, true)
}

// EndGenerating clears the generating guard.
func (d *Data) EndGenerating() {
	d.generating.Store(false)
}

// Generating reports whether a generation call is in progress.
func (d *Data) Generating() bool {
	return d.generating.Load()
}

// ReplaceMissions swaps in a new batch wholesale and advances NextIndex
// past its last index.
func (d *Data) ReplaceMissions(batch []core.MissionParams) {
	missions := make(map[core.MissionIndex]core.MissionParams, len(batch))
	next := core.MissionIndex(0)
	for _, m := range batch {
		missions[m.Index] = m
		if m.Index+1 > next {
			next = m.Index + 1
		}
	}
	d.Missions = missions
	d.NextIndex = next
}

// MissionList returns the offered missions ordered by index.
func (d *Data) MissionList() []core.MissionParams {
	keys := slices.Sorted(maps.Keys(d.Missions))
	list := make([]core.MissionParams, 0, len(keys))
	for _, k := range keys {
		list = append(list, d.Missions[k])
	}
	return list
}
