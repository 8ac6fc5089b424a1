package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stickycheZ101/HardLight/internal/console"
	"github.com/stickycheZ101/HardLight/internal/expedition"
	"github.com/stickycheZ101/HardLight/internal/generator"
	"github.com/stickycheZ101/HardLight/internal/jobqueue"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeWorldJob struct {
	req   SpawnRequest
	id    core.WorldID
	steps int
	ran   int
	fail  error
	world *core.MissionWorld
}

func (j *fakeWorldJob) Step(ctx context.Context) (bool, error) {
	j.ran++
	if j.ran < j.steps {
		return false, nil
	}
	if j.fail != nil {
		return false, j.fail
	}
	j.world = &core.MissionWorld{
		ID:          j.id,
		Coordinates: j.req.Coordinates,
		Params:      j.req.Params,
		Stage:       core.StageReady,
	}
	return true, nil
}

func (j *fakeWorldJob) World() *core.MissionWorld { return j.world }

type fakeSpawner struct {
	steps     int
	fail      error
	refuse    error
	n         int
	jobs      []*fakeWorldJob
	despawned []core.WorldID
}

func (s *fakeSpawner) SpawnWorld(req SpawnRequest) (WorldJob, error) {
	if s.refuse != nil {
		return nil, s.refuse
	}
	s.n++
	j := &fakeWorldJob{req: req, id: core.WorldID(fmt.Sprintf("world-%d", s.n)), steps: s.steps, fail: s.fail}
	if j.steps == 0 {
		j.steps = 1
	}
	s.jobs = append(s.jobs, j)
	return j, nil
}

func (s *fakeSpawner) Despawn(world core.WorldID) {
	s.despawned = append(s.despawned, world)
}

type reward struct {
	proto string
	at    core.Placement
}

type fakeRewards struct {
	spawned []reward
	err     error
}

func (r *fakeRewards) SpawnReward(proto string, at core.Placement) error {
	if r.err != nil {
		return r.err
	}
	r.spawned = append(r.spawned, reward{proto: proto, at: at})
	return nil
}

type announcement struct {
	station core.StationID
	message string
}

type fakeAnnouncer struct {
	sent []announcement
}

func (a *fakeAnnouncer) Announce(target core.StationID, message string) {
	a.sent = append(a.sent, announcement{station: target, message: message})
}

type fakeTransit map[core.StationID]bool

func (t fakeTransit) InTransit(station core.StationID) bool { return t[station] }

type fakeConsoles map[core.ConsoleID]core.Console

func (c fakeConsoles) Lookup(id core.ConsoleID) (core.Console, bool) {
	cons, ok := c[id]
	return cons, ok
}

type fakeRecorder struct {
	events []core.ExpeditionEvent
	hook   func(e *core.ExpeditionEvent)
}

func (r *fakeRecorder) RecordEvent(e *core.ExpeditionEvent) error {
	r.events = append(r.events, *e)
	if r.hook != nil {
		r.hook(e)
	}
	return nil
}

func (r *fakeRecorder) kinds(station core.StationID) []core.EventKind {
	var out []core.EventKind
	for _, e := range r.events {
		if e.Station == station {
			out = append(out, e.Kind)
		}
	}
	return out
}

var errSpawn = errors.New("dungeon generation failed")

var testCatalog = []core.Difficulty{
	{ID: "NFModerate", Order: 0},
	{ID: "NFHazardous", Order: 1},
	{ID: "NFExtreme", Order: 2},
}

type harness struct {
	c         *Controller
	clock     *manualClock
	store     *expedition.Store
	queue     *jobqueue.Queue
	sink      *console.MemorySink
	spawner   *fakeSpawner
	rewards   *fakeRewards
	announcer *fakeAnnouncer
	transit   fakeTransit
	consoles  fakeConsoles
	recorder  *fakeRecorder
}

func testConfig() Config {
	return Config{
		Cooldown:         780 * time.Second,
		FailedCooldown:   900 * time.Second,
		TravelSuspension: true,
		TravelTime:       50 * time.Second,
		JobTimeBudget:    2 * time.Millisecond,
		Rewards: map[core.DifficultyID]string{
			"NFModerate":  "SpaceCashExpeditionT1",
			"NFHazardous": "SpaceCashExpeditionT2",
			"NFExtreme":   "SpaceCashExpeditionT3",
		},
		DefaultReward: "SpaceCashExpeditionT1",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	// frozen clock: the budget is never exhausted inside Process
	q, err := jobqueue.New(jobqueue.WithClock(clock.Now))
	require.NoError(t, err)

	h := &harness{
		clock:     clock,
		store:     expedition.NewStore(),
		queue:     q,
		sink:      console.NewMemorySink(),
		spawner:   &fakeSpawner{},
		rewards:   &fakeRewards{},
		announcer: &fakeAnnouncer{},
		transit:   fakeTransit{},
		consoles:  fakeConsoles{},
		recorder:  &fakeRecorder{},
	}
	h.c = New(Dependencies{
		Store:     h.store,
		Queue:     q,
		Generator: generator.New(rand.New(rand.NewPCG(7, 11)), testCatalog, 6),
		Sync:      console.NewSync(h.sink),
		Spawner:   h.spawner,
		Rewards:   h.rewards,
		Announcer: h.announcer,
		Transit:   h.transit,
		Consoles:  h.consoles,
		Recorder:  h.recorder,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     clock.Now,
	}, testConfig())
	return h
}

// station registers a station and runs the first tick so it has a batch.
func (h *harness) station(t *testing.T, id core.StationID) *expedition.Data {
	t.Helper()
	h.c.AddStation(StationAddedMessage{Station: id})
	h.c.Update()
	d, ok := h.store.Get(id)
	require.True(t, ok)
	require.NotEmpty(t, d.Missions)
	return d
}

func (h *harness) claim(t *testing.T, id core.StationID, idx core.MissionIndex) {
	t.Helper()
	require.NoError(t, h.c.Claim(ClaimMessage{
		Station:     id,
		Console:     "console-1",
		Index:       idx,
		Coordinates: "12,-40",
	}))
}
