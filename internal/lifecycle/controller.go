// Package lifecycle drives the per-station expedition cycle:
// offer, claim, spawn, active, finish, cooldown and offer again.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stickycheZ101/HardLight/internal/console"
	"github.com/stickycheZ101/HardLight/internal/expedition"
	"github.com/stickycheZ101/HardLight/internal/generator"
	"github.com/stickycheZ101/HardLight/internal/jobqueue"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

var (
	ErrUnknownStation = errors.New("station has no expedition data")
	ErrMissionActive  = errors.New("station already has an active mission")
	ErrUnknownMission = errors.New("mission is not on offer")
	ErrNotActive      = errors.New("station has no active mission world")
)

// Config holds the tunable timings of the cycle.
type Config struct {
	Cooldown         time.Duration
	FailedCooldown   time.Duration
	TravelSuspension bool
	TravelTime       time.Duration
	JobTimeBudget    time.Duration
	Rewards          map[core.DifficultyID]string
	DefaultReward    string
}

// Dependencies holds all collaborators of the controller.
type Dependencies struct {
	Store     *expedition.Store
	Queue     *jobqueue.Queue
	Generator *generator.Generator
	Sync      *console.Sync
	Spawner   WorldSpawner
	Rewards   RewardSpawner
	Announcer Announcer
	Transit   TransitChecker   // optional
	Consoles  ConsoleDirectory // optional
	Recorder  Recorder         // optional
	Logger    *slog.Logger
	Clock     func() time.Time
}

type trackedJob struct {
	job     *jobqueue.Job
	work    WorldJob
	req     SpawnRequest
	claimed time.Time
}

// Controller owns the expedition state machine of every station. All
// methods must be called from the tick goroutine.
type Controller struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	jobs      []*trackedJob
	worlds    map[core.WorldID]*core.MissionWorld
	byStation map[core.StationID]core.WorldID
	transit   map[core.StationID]bool
	ticks     uint64
}

// New creates a controller.
func New(deps Dependencies, cfg Config) *Controller {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		deps:      deps,
		cfg:       cfg,
		log:       log.With("component", "expeditions"),
		worlds:    make(map[core.WorldID]*core.MissionWorld),
		byStation: make(map[core.StationID]core.WorldID),
		transit:   make(map[core.StationID]bool),
	}
}

// Ticks returns how many times Update has run.
func (c *Controller) Ticks() uint64 {
	return c.ticks
}

// AddStation creates the expedition record of a new station. The first
// batch is generated on the next Update.
func (c *Controller) AddStation(msg StationAddedMessage) {
	d := c.deps.Store.Add(msg.Station, c.deps.Clock())
	c.log.Info("Station registered", "station", msg.Station)
	c.deps.Sync.Push(d)
}

// Claim starts the spawn job for an offered mission. Claims for unknown
// missions or while another mission is active change nothing.
func (c *Controller) Claim(msg ClaimMessage) error {
	d, ok := c.deps.Store.Get(msg.Station)
	if !ok {
		return fmt.Errorf("claim on %s: %w", msg.Station, ErrUnknownStation)
	}
	if d.HasActiveMission() {
		active, _ := d.ActiveMission()
		c.log.Debug("Claim rejected, mission already active", "station", msg.Station, "mission", msg.Index, "active", active)
		return fmt.Errorf("claim %d on %s: %w", msg.Index, msg.Station, ErrMissionActive)
	}
	params, ok := d.Missions[msg.Index]
	if !ok {
		c.log.Debug("Claim rejected, mission not offered", "station", msg.Station, "mission", msg.Index)
		return fmt.Errorf("claim %d on %s: %w", msg.Index, msg.Station, ErrUnknownMission)
	}

	req := SpawnRequest{
		Params:      params,
		Station:     msg.Station,
		Console:     msg.Console,
		Coordinates: msg.Coordinates,
		TravelTime:  c.cfg.TravelTime,
	}
	work, err := c.deps.Spawner.SpawnWorld(req)
	if err != nil {
		return fmt.Errorf("spawning world for mission %d: %w", msg.Index, err)
	}
	job := jobqueue.NewJob(work)
	if err := c.deps.Queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueueing spawn job: %w", err)
	}

	d.Claim(msg.Index)
	c.jobs = append(c.jobs, &trackedJob{job: job, work: work, req: req, claimed: c.deps.Clock()})

	c.log.Info("Expedition claimed", "station", msg.Station, "mission", msg.Index,
		"difficulty", params.Difficulty, "console", msg.Console, "job", job.ID)
	c.record(d, core.EventClaimed, &params, msg.Console, "")
	c.deps.Sync.Push(d)
	return nil
}

// Finish ends the active mission world of a station, as a success or a failure.
func (c *Controller) Finish(msg FinishMessage) error {
	d, ok := c.deps.Store.Get(msg.Station)
	if !ok {
		return fmt.Errorf("finish on %s: %w", msg.Station, ErrUnknownStation)
	}
	id, ok := c.byStation[msg.Station]
	if !ok {
		return fmt.Errorf("finish on %s: %w", msg.Station, ErrNotActive)
	}
	world := c.worlds[id]
	c.unbindWorld(world)
	c.deps.Spawner.Despawn(world.ID)

	if !d.IsActive(world.Params.Index) {
		c.log.Debug("Ignoring finish for superseded mission", "station", msg.Station, "mission", world.Params.Index)
		return nil
	}

	world.Completed = msg.Success
	c.finishExpedition(d, world)
	return nil
}

// Refresh pushes the current snapshot of a station without changing it.
func (c *Controller) Refresh(msg RefreshMessage) (core.ConsoleSnapshot, error) {
	d, ok := c.deps.Store.Get(msg.Station)
	if !ok {
		return core.ConsoleSnapshot{}, fmt.Errorf("refresh on %s: %w", msg.Station, ErrUnknownStation)
	}
	return c.deps.Sync.Push(d), nil
}

// Regenerate replaces the offered batch right away. Skipped while a
// mission is active.
func (c *Controller) Regenerate(msg RegenerateMessage) error {
	d, ok := c.deps.Store.Get(msg.Station)
	if !ok {
		return fmt.Errorf("regenerate on %s: %w", msg.Station, ErrUnknownStation)
	}
	if d.HasActiveMission() {
		return fmt.Errorf("regenerate on %s: %w", msg.Station, ErrMissionActive)
	}
	c.generateMissions(d)
	c.deps.Sync.Push(d)
	return nil
}

// WorldShutdown handles a mission world going away without an explicit
// finish. The expedition ends with whatever the world's completed flag says.
func (c *Controller) WorldShutdown(msg WorldShutdownMessage) {
	world, ok := c.worlds[msg.World]
	if !ok {
		c.log.Debug("Shutdown for unbound world", "world", msg.World)
		return
	}
	c.unbindWorld(world)
	c.cancelJobs(world.Station)

	d, ok := c.deps.Store.Get(world.Station)
	if !ok {
		c.log.Info("Expedition shutdown: no expedition data found on station", "station", world.Station, "world", world.ID)
		return
	}
	if !d.IsActive(world.Params.Index) {
		c.log.Debug("Ignoring shutdown of superseded mission world", "station", world.Station, "mission", world.Params.Index)
		return
	}
	c.finishExpedition(d, world)
}

// CompleteObjective flags a bound mission world as completed.
func (c *Controller) CompleteObjective(msg ObjectiveCompletedMessage) error {
	world, ok := c.worlds[msg.World]
	if !ok {
		return fmt.Errorf("objective of %s: %w", msg.World, ErrNotActive)
	}
	world.Completed = true
	c.log.Debug("Mission objective completed", "station", world.Station, "world", world.ID)
	return nil
}

// RemoveStation tears down everything bound to a destroyed station.
func (c *Controller) RemoveStation(msg StationRemovedMessage) {
	cancelled := c.cancelJobs(msg.Station)

	if id, ok := c.byStation[msg.Station]; ok {
		c.unbindWorld(c.worlds[id])
		c.deps.Spawner.Despawn(id)
	}

	d, ok := c.deps.Store.Get(msg.Station)
	if !ok {
		c.log.Info("Station removed without expedition data", "station", msg.Station)
		return
	}
	c.deps.Store.Remove(msg.Station)
	delete(c.transit, msg.Station)
	c.record(d, core.EventStationRemoved, nil, "", fmt.Sprintf("%d jobs cancelled", cancelled))
	c.log.Info("Station removed", "station", msg.Station, "cancelledJobs", cancelled)
}

// Update runs one simulation tick: services the job queue, reaps finished
// spawn jobs and reopens offers whose cooldown has elapsed.
func (c *Controller) Update() {
	c.ticks++
	now := c.deps.Clock()

	c.deps.Queue.Process(c.cfg.JobTimeBudget)
	c.reapJobs()

	for _, d := range c.deps.Store.Stations() {
		if d.NextOffer.After(now) || d.Claimed {
			continue
		}

		// In FTL the cooldown is re-derived every tick instead of counting down.
		if c.cfg.TravelSuspension && c.inTransit(d.Station) {
			if !d.Cooldown {
				d.Cooldown = true
				c.deps.Sync.Push(d)
			}
			continue
		}

		resumed := d.Cooldown
		d.Cooldown = false
		d.NextOffer = now.Add(c.cfg.Cooldown)
		d.CooldownDuration = c.cfg.Cooldown

		if !d.Generating() && !d.HasActiveMission() {
			c.generateMissions(d)
		}
		if resumed {
			c.record(d, core.EventOfferResumed, nil, "", "")
		}
		c.deps.Sync.Push(d)
	}
}

// SetTransit records a station entering or leaving FTL. The held offer
// is re-evaluated on the next Update.
func (c *Controller) SetTransit(msg TransitChangedMessage) error {
	if _, ok := c.deps.Store.Get(msg.Station); !ok {
		return fmt.Errorf("transit on %s: %w", msg.Station, ErrUnknownStation)
	}
	if msg.InTransit {
		c.transit[msg.Station] = true
	} else {
		delete(c.transit, msg.Station)
	}
	c.log.Debug("Transit changed", "station", msg.Station, "inTransit", msg.InTransit)
	return nil
}

func (c *Controller) inTransit(station core.StationID) bool {
	if c.transit[station] {
		return true
	}
	return c.deps.Transit != nil && c.deps.Transit.InTransit(station)
}

// SetCooldown changes the success cooldown and shifts every pending offer
// by the difference.
func (c *Controller) SetCooldown(cooldown time.Duration) {
	diff := cooldown - c.cfg.Cooldown
	for _, d := range c.deps.Store.Stations() {
		d.NextOffer = d.NextOffer.Add(diff)
	}
	c.cfg.Cooldown = cooldown
}

// SetFailedCooldown changes the failed cooldown for future failures only.
func (c *Controller) SetFailedCooldown(cooldown time.Duration) {
	c.cfg.FailedCooldown = cooldown
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// PendingJobs returns how many spawn jobs are tracked for station.
func (c *Controller) PendingJobs(station core.StationID) int {
	n := 0
	for _, tj := range c.jobs {
		if tj.req.Station == station {
			n++
		}
	}
	return n
}

// Stations returns the number of registered stations.
func (c *Controller) Stations() int {
	return c.deps.Store.Len()
}

// QueueLength returns the number of jobs waiting in the job queue.
func (c *Controller) QueueLength() int {
	return c.deps.Queue.Len()
}

// TrackedJobs returns the number of spawn jobs not yet reaped.
func (c *Controller) TrackedJobs() int {
	return len(c.jobs)
}

// World returns the mission world bound to station.
func (c *Controller) World(station core.StationID) (*core.MissionWorld, bool) {
	id, ok := c.byStation[station]
	if !ok {
		return nil, false
	}
	return c.worlds[id], true
}

// Worlds returns the number of bound mission worlds.
func (c *Controller) Worlds() int {
	return len(c.worlds)
}

func (c *Controller) reapJobs() {
	var remaining []*trackedJob
	var done []*trackedJob
	for _, tj := range c.jobs {
		if tj.job.Status().Terminal() {
			done = append(done, tj)
		} else {
			remaining = append(remaining, tj)
		}
	}
	c.jobs = remaining

	for _, tj := range done {
		ev := spawnCompleteEvent{
			Station: tj.req.Station,
			Index:   tj.req.Params.Index,
			Success: tj.job.Status() == jobqueue.Finished,
			Err:     tj.job.Err(),
		}
		c.onSpawnComplete(ev, tj)
	}
}

func (c *Controller) onSpawnComplete(ev spawnCompleteEvent, tj *trackedJob) {
	var world *core.MissionWorld
	if ev.Success {
		world = tj.work.World()
		if world == nil {
			ev.Success = false
			ev.Err = errors.New("spawn job finished without a world")
		}
	}

	d, ok := c.deps.Store.Get(ev.Station)
	if !ok || !d.IsActive(ev.Index) {
		c.log.Debug("Ignoring spawn completion for superseded mission", "station", ev.Station, "mission", ev.Index)
		if world != nil {
			c.deps.Spawner.Despawn(world.ID)
		}
		return
	}

	if !ev.Success {
		d.Release()
		d.Cooldown = false
		c.log.Info("Expedition mission spawn failed, reset console state", "station", ev.Station, "mission", ev.Index, "error", ev.Err)
		detail := ""
		if ev.Err != nil {
			detail = ev.Err.Error()
		}
		c.record(d, core.EventSpawnFailed, &tj.req.Params, tj.req.Console, detail)
		c.deps.Sync.Push(d)
		return
	}

	world.Station = ev.Station
	world.Console = tj.req.Console
	c.worlds[world.ID] = world
	c.byStation[ev.Station] = world.ID
	d.Activate()

	c.log.Debug("Expedition mission spawned", "station", ev.Station, "mission", ev.Index, "world", world.ID,
		"took", c.deps.Clock().Sub(tj.claimed))
	c.record(d, core.EventSpawned, &tj.req.Params, tj.req.Console, string(world.ID))
	c.deps.Sync.Push(d)
}

func (c *Controller) finishExpedition(d *expedition.Data, world *core.MissionWorld) {
	now := c.deps.Clock()
	params := world.Params

	if world.Completed {
		d.Conclude(now, c.cfg.Cooldown)
		c.deps.Announcer.Announce(d.Station, MsgMissionCompleted)
		c.spawnReward(world)
		c.record(d, core.EventCompleted, &params, world.Console, "")
	} else {
		d.Conclude(now, c.cfg.FailedCooldown)
		c.deps.Announcer.Announce(d.Station, MsgMissionFailed)
		c.record(d, core.EventFailed, &params, world.Console, "")
	}

	c.log.Info("Expedition finished", "station", d.Station, "mission", params.Index,
		"completed", world.Completed, "nextOffer", d.NextOffer)
	c.deps.Sync.Push(d)
}

func (c *Controller) spawnReward(world *core.MissionWorld) {
	if world.Console == "" || c.deps.Consoles == nil {
		c.log.Warn("Expedition completed but console reference missing; cannot spawn reward.", "station", world.Station)
		return
	}
	cons, ok := c.deps.Consoles.Lookup(world.Console)
	if !ok {
		c.log.Warn("Expedition completed but console no longer exists; cannot spawn reward.", "console", world.Console)
		return
	}
	if cons.Placement == nil {
		c.log.Warn("Expedition completed but console has no transform; cannot spawn reward.", "console", world.Console)
		return
	}

	proto, ok := c.cfg.Rewards[world.Params.Difficulty]
	if !ok {
		proto = c.cfg.DefaultReward
	}
	if err := c.deps.Rewards.SpawnReward(proto, *cons.Placement); err != nil {
		c.log.Error("Failed to spawn expedition reward", "proto", proto, "console", world.Console, "error", err)
		return
	}
	c.log.Info("Spawned expedition reward", "proto", proto, "console", world.Console, "difficulty", world.Params.Difficulty)
}

func (c *Controller) generateMissions(d *expedition.Data) {
	if !d.BeginGenerating() {
		c.log.Debug("Skipping mission generation - already in progress", "station", d.Station)
		return
	}
	defer d.EndGenerating()

	clear(d.Missions)

	missions, err := c.deps.Generator.Generate()
	if err != nil {
		c.log.Error("Mission generation failed", "station", d.Station, "error", err)
		return
	}
	d.ReplaceMissions(missions)

	c.log.Debug("Generated new missions", "station", d.Station, "count", len(missions))
	c.record(d, core.EventMissionsGenerated, nil, "", fmt.Sprintf("%d missions", len(missions)))
}

// cancelJobs cancels and stops tracking every spawn job of station.
func (c *Controller) cancelJobs(station core.StationID) int {
	var remaining []*trackedJob
	cancelled := 0
	for _, tj := range c.jobs {
		if tj.req.Station == station {
			tj.job.Cancel()
			cancelled++
			continue
		}
		remaining = append(remaining, tj)
	}
	c.jobs = remaining
	return cancelled
}

func (c *Controller) unbindWorld(world *core.MissionWorld) {
	delete(c.worlds, world.ID)
	if c.byStation[world.Station] == world.ID {
		delete(c.byStation, world.Station)
	}
}

func (c *Controller) record(d *expedition.Data, kind core.EventKind, params *core.MissionParams, cons core.ConsoleID, detail string) {
	if c.deps.Recorder == nil {
		return
	}
	e := &core.ExpeditionEvent{
		Time:      c.deps.Clock(),
		Station:   d.Station,
		Kind:      kind,
		Mission:   params,
		Console:   cons,
		NextOffer: d.NextOffer,
		Cooldown:  d.CooldownDuration,
		Detail:    detail,
	}
	if err := c.deps.Recorder.RecordEvent(e); err != nil {
		c.log.Warn("Failed to record expedition event", "station", d.Station, "kind", kind, "error", err)
	}
}
