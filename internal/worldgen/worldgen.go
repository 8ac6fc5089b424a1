// Package worldgen provides in-process stand-ins for the engine systems the
// expedition controller talks to: a staged world generator, the console
// directory, reward placement and announcements.
package worldgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stickycheZ101/HardLight/internal/lifecycle"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

var (
	ErrTimedOut         = errors.New("world generation timed out")
	ErrGenerationFailed = errors.New("world generation failed")
)

// Config tunes the simulated generator.
type Config struct {
	// StageDelay is the minimum time between two stages.
	StageDelay time.Duration
	// Timeout bounds the whole job, measured from the first step.
	Timeout time.Duration
	// FailureRate is the chance in [0,1] that the dungeon stage fails.
	FailureRate float64
}

// Spawner creates staged world jobs and keeps the live worlds.
type Spawner struct {
	cfg   Config
	now   func() time.Time
	rng   *rand.Rand
	log   *slog.Logger
	mu    sync.RWMutex
	alive map[core.WorldID]*core.MissionWorld
}

// NewSpawner creates a Spawner. A nil clock means time.Now.
func NewSpawner(cfg Config, now func() time.Time, rng *rand.Rand, logger *slog.Logger) *Spawner {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		cfg:   cfg,
		now:   now,
		rng:   rng,
		log:   logger.With("component", "worldgen"),
		alive: make(map[core.WorldID]*core.MissionWorld),
	}
}

// SpawnWorld returns the job that will build the world for req.
func (s *Spawner) SpawnWorld(req lifecycle.SpawnRequest) (lifecycle.WorldJob, error) {
	if req.Station == "" {
		return nil, fmt.Errorf("spawn request without station: %w", ErrGenerationFailed)
	}
	fail := s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate
	return &Job{
		spawner: s,
		req:     req,
		fail:    fail,
		world: &core.MissionWorld{
			ID:          core.WorldID("world-" + uuid.NewString()),
			Station:     req.Station,
			Console:     req.Console,
			Coordinates: req.Coordinates,
			Params:      req.Params,
			Stage:       core.StageSetup,
		},
	}, nil
}

// Despawn forgets a world.
func (s *Spawner) Despawn(id core.WorldID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alive[id]; ok {
		delete(s.alive, id)
		s.log.Debug("World despawned", "world", id)
	}
}

// Alive returns the number of worlds that finished generating and were not despawned.
func (s *Spawner) Alive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alive)
}

// Get returns a live world.
func (s *Spawner) Get(id core.WorldID) (*core.MissionWorld, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.alive[id]
	return w, ok
}

func (s *Spawner) publish(w *core.MissionWorld) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive[w.ID] = w
}

// Job advances a world through its stages, one stage per step at most.
type Job struct {
	spawner  *Spawner
	req      lifecycle.SpawnRequest
	world    *core.MissionWorld
	fail     bool
	started  time.Time
	lastStep time.Time
	waiting  bool
	done     bool
}

// Step implements jobqueue.Work.
func (j *Job) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := j.spawner.now()
	if j.started.IsZero() {
		j.started = now
		j.lastStep = now
	}
	if j.spawner.cfg.Timeout > 0 && now.Sub(j.started) > j.spawner.cfg.Timeout {
		return false, fmt.Errorf("%s at stage %s: %w", j.world.ID, j.world.Stage, ErrTimedOut)
	}
	j.waiting = now.Sub(j.lastStep) < j.spawner.cfg.StageDelay
	if j.waiting {
		return false, nil
	}
	j.lastStep = now

	j.world.Stage++
	if j.world.Stage == core.StageDungeon && j.fail {
		return false, fmt.Errorf("%s dungeon for %s: %w", j.world.ID, j.req.Params.Difficulty, ErrGenerationFailed)
	}
	if j.world.Stage < core.StageReady {
		return false, nil
	}

	j.done = true
	j.spawner.publish(j.world)
	j.spawner.log.Info("World generated", "world", j.world.ID, "station", j.req.Station,
		"mission", j.req.Params.Index, "seed", j.req.Params.Seed, "took", now.Sub(j.started))
	return true, nil
}

// Waiting implements jobqueue.Waiter: the last step found the stage delay
// still running.
func (j *Job) Waiting() bool {
	return j.waiting
}

// World returns the generated world once the job is done.
func (j *Job) World() *core.MissionWorld {
	if !j.done {
		return nil
	}
	return j.world
}
