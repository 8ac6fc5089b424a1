package worldgen

import (
	"log/slog"
	"sync"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Consoles is the console directory.
type Consoles struct {
	mu       sync.RWMutex
	consoles map[core.ConsoleID]core.Console
}

// NewConsoles creates an empty directory.
func NewConsoles() *Consoles {
	return &Consoles{consoles: make(map[core.ConsoleID]core.Console)}
}

// Register adds or replaces a console.
func (c *Consoles) Register(cons core.Console) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consoles[cons.ID] = cons
}

// Unregister removes a console.
func (c *Consoles) Unregister(id core.ConsoleID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consoles, id)
}

// RemoveStation drops every console of station.
func (c *Consoles) RemoveStation(station core.StationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cons := range c.consoles {
		if cons.Station == station {
			delete(c.consoles, id)
		}
	}
}

// Lookup implements lifecycle.ConsoleDirectory.
func (c *Consoles) Lookup(id core.ConsoleID) (core.Console, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cons, ok := c.consoles[id]
	return cons, ok
}

// Reward is one spawned reward item.
type Reward struct {
	Proto string
	At    core.Placement
}

// Rewards places reward items by recording them.
type Rewards struct {
	mu      sync.Mutex
	log     *slog.Logger
	spawned []Reward
}

// NewRewards creates a reward spawner logging to logger.
func NewRewards(logger *slog.Logger) *Rewards {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewards{log: logger}
}

// SpawnReward implements lifecycle.RewardSpawner.
func (r *Rewards) SpawnReward(proto string, at core.Placement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = append(r.spawned, Reward{Proto: proto, At: at})
	r.log.Debug("Reward placed", "proto", proto, "parent", at.Parent, "x", at.X, "y", at.Y)
	return nil
}

// Spawned returns a copy of every reward placed so far.
func (r *Rewards) Spawned() []Reward {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reward(nil), r.spawned...)
}

// Announcer writes announcements to the log.
type Announcer struct {
	log *slog.Logger
}

// NewAnnouncer creates an announcer logging to logger.
func NewAnnouncer(logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{log: logger}
}

// Announce implements lifecycle.Announcer.
func (a *Announcer) Announce(target core.StationID, message string) {
	a.log.Info(message, "station", target, "kind", "announcement")
}
