// Package console projects expedition state into snapshots for the console UI.
package console

import (
	"slices"
	"sync"

	"github.com/stickycheZ101/HardLight/internal/expedition"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Sink receives snapshots. Push must not block the tick goroutine.
type Sink interface {
	Push(snapshot core.ConsoleSnapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(core.ConsoleSnapshot)

// Push calls f.
func (f SinkFunc) Push(s core.ConsoleSnapshot) {
	f(s)
}

// Project builds the immutable snapshot of d.
func Project(d *expedition.Data) core.ConsoleSnapshot {
	active, hasActive := d.ActiveMission()
	return core.ConsoleSnapshot{
		Station:          d.Station,
		NextOffer:        d.NextOffer,
		Claimed:          d.Claimed,
		Cooldown:         d.Cooldown,
		CooldownDuration: d.CooldownDuration,
		ActiveMission:    active,
		HasActiveMission: hasActive,
		Missions:         d.MissionList(),
		CanFinish:        d.CanFinish,
	}
}

// Sync fans snapshots out to every registered sink.
type Sync struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewSync creates a Sync pushing to sinks.
func NewSync(sinks ...Sink) *Sync {
	return &Sync{sinks: slices.Clone(sinks)}
}

// AddSink registers another sink.
func (s *Sync) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Push projects d and delivers the snapshot to all sinks.
func (s *Sync) Push(d *expedition.Data) core.ConsoleSnapshot {
	snap := Project(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sink := range s.sinks {
		sink.Push(snap)
	}
	return snap
}
