package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickycheZ101/HardLight/internal/jobqueue"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

func TestController_FirstTickGeneratesPaddedBatch(t *testing.T) {
	h := newHarness(t)
	start := h.clock.Now()

	d := h.station(t, "station-a")

	require.Len(t, d.Missions, 6)
	for i := core.MissionIndex(0); i < 6; i++ {
		_, ok := d.Missions[i]
		assert.True(t, ok, "index %d", i)
	}
	assert.Equal(t, core.MissionIndex(6), d.NextIndex)
	assert.Equal(t, start.Add(780*time.Second), d.NextOffer)
	assert.False(t, d.Cooldown)
	assert.False(t, d.Claimed)

	list := d.MissionList()
	for i := 1; i < len(list); i++ {
		orderPrev := orderOf(list[i-1].Difficulty)
		assert.LessOrEqual(t, orderPrev, orderOf(list[i].Difficulty))
	}

	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.Len(t, snap.Missions, 6)
	assert.Contains(t, h.recorder.kinds("station-a"), core.EventMissionsGenerated)
}

func TestController_ClaimSpawnFinishSuccess(t *testing.T) {
	h := newHarness(t)
	h.consoles["console-1"] = core.Console{
		ID:        "console-1",
		Station:   "station-a",
		Placement: &core.Placement{Parent: "station-a", X: 3, Y: 4},
	}
	d := h.station(t, "station-a")
	params := d.Missions[2]

	h.claim(t, "station-a", 2)

	assert.True(t, d.Claimed)
	assert.True(t, d.IsActive(2))
	assert.Empty(t, d.Missions)
	assert.Equal(t, 1, h.c.PendingJobs("station-a"))
	require.Len(t, h.spawner.jobs, 1)
	assert.Equal(t, 50*time.Second, h.spawner.jobs[0].req.TravelTime)

	h.clock.Advance(time.Second)
	h.c.Update()

	world, ok := h.c.World("station-a")
	require.True(t, ok)
	assert.Equal(t, core.ConsoleID("console-1"), world.Console)
	assert.Equal(t, params, world.Params)
	assert.True(t, d.CanFinish)
	assert.Equal(t, 0, h.c.TrackedJobs())

	h.clock.Advance(10 * time.Minute)
	finishedAt := h.clock.Now()
	require.NoError(t, h.c.Finish(FinishMessage{Station: "station-a", Success: true}))

	assert.False(t, d.Claimed)
	assert.False(t, d.HasActiveMission())
	assert.False(t, d.CanFinish)
	assert.True(t, d.Cooldown)
	assert.Empty(t, d.Missions)
	assert.Equal(t, finishedAt.Add(780*time.Second), d.NextOffer)
	assert.Equal(t, 780*time.Second, d.CooldownDuration)

	assert.Equal(t, []announcement{{station: "station-a", message: MsgMissionCompleted}}, h.announcer.sent)
	require.Len(t, h.rewards.spawned, 1)
	assert.Equal(t, testConfig().Rewards[params.Difficulty], h.rewards.spawned[0].proto)
	assert.Equal(t, core.Placement{Parent: "station-a", X: 3, Y: 4}, h.rewards.spawned[0].at)
	assert.Equal(t, []core.WorldID{world.ID}, h.spawner.despawned)
	assert.Equal(t, 0, h.c.Worlds())

	assert.Equal(t, []core.EventKind{
		core.EventMissionsGenerated,
		core.EventClaimed,
		core.EventSpawned,
		core.EventCompleted,
	}, h.recorder.kinds("station-a"))

	// offer reopens once the cooldown elapses
	h.clock.Advance(780 * time.Second)
	h.c.Update()
	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
	assert.Contains(t, h.recorder.kinds("station-a"), core.EventOfferResumed)
}

func TestController_FinishFailureUsesFailedCooldown(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	h.claim(t, "station-a", 0)
	h.c.Update()

	require.NoError(t, h.c.Finish(FinishMessage{Station: "station-a", Success: false}))

	assert.Equal(t, h.clock.Now().Add(900*time.Second), d.NextOffer)
	assert.Equal(t, 900*time.Second, d.CooldownDuration)
	assert.Equal(t, []announcement{{station: "station-a", message: MsgMissionFailed}}, h.announcer.sent)
	assert.Empty(t, h.rewards.spawned)
}

func TestController_ClaimIndexZero(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")

	h.claim(t, "station-a", 0)

	active, ok := d.ActiveMission()
	assert.True(t, ok)
	assert.Equal(t, core.MissionIndex(0), active)

	snap, _ := h.sink.Latest("station-a")
	assert.True(t, snap.HasActiveMission)
	assert.Equal(t, core.MissionIndex(0), snap.ActiveMission)
}

func TestController_ClaimRejections(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")

	d, _ := h.store.Get("station-a")
	offered := d.MissionList()
	pushes := h.sink.Pushes("station-a")

	assert.ErrorIs(t, h.c.Claim(ClaimMessage{Station: "nowhere", Index: 0}), ErrUnknownStation)
	assert.ErrorIs(t, h.c.Claim(ClaimMessage{Station: "station-a", Index: 42}), ErrUnknownMission)
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, offered, d.MissionList())
	assert.False(t, d.Claimed)
	assert.False(t, d.HasActiveMission())
	assert.False(t, d.Cooldown)
	assert.Equal(t, pushes, h.sink.Pushes("station-a"))

	h.claim(t, "station-a", 1)
	active, _ := d.ActiveMission()
	claimedPushes := h.sink.Pushes("station-a")

	assert.ErrorIs(t, h.c.Claim(ClaimMessage{Station: "station-a", Index: 1}), ErrMissionActive)
	assert.ErrorIs(t, h.c.Claim(ClaimMessage{Station: "station-a", Index: 2}), ErrMissionActive)
	assert.Equal(t, 1, h.queue.Len(), "rejected claim must not enqueue")
	assert.True(t, d.Claimed)
	assert.True(t, d.IsActive(active))
	assert.Equal(t, core.MissionIndex(1), active)
	assert.False(t, d.Cooldown)
	assert.Equal(t, claimedPushes, h.sink.Pushes("station-a"))
	assert.Equal(t, 1, h.c.PendingJobs("station-a"))
}

func TestController_SpawnRefusedLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	h.spawner.refuse = errSpawn

	err := h.c.Claim(ClaimMessage{Station: "station-a", Index: 3})

	assert.ErrorIs(t, err, errSpawn)
	assert.False(t, d.Claimed)
	assert.False(t, d.HasActiveMission())
	assert.Len(t, d.Missions, 6)
}

func TestController_SpawnFailureRestoresOffer(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	before := d.MissionList()
	nextOffer := d.NextOffer
	h.spawner.fail = errSpawn

	h.claim(t, "station-a", 3)
	h.c.Update()

	assert.False(t, d.Claimed)
	assert.False(t, d.HasActiveMission())
	assert.False(t, d.Cooldown)
	assert.Equal(t, before, d.MissionList())
	assert.Equal(t, nextOffer, d.NextOffer)
	_, bound := h.c.World("station-a")
	assert.False(t, bound)
	assert.Equal(t, 0, h.c.TrackedJobs())

	kinds := h.recorder.kinds("station-a")
	assert.Equal(t, core.EventSpawnFailed, kinds[len(kinds)-1])

	// the same mission can be claimed again
	h.spawner.fail = nil
	h.claim(t, "station-a", 3)
}

func TestController_StationRemovedCancelsPendingJob(t *testing.T) {
	h := newHarness(t)
	h.spawner.steps = 100
	h.station(t, "station-a")
	h.claim(t, "station-a", 1)

	job := h.c.jobs[0].job
	h.c.RemoveStation(StationRemovedMessage{Station: "station-a"})

	assert.Equal(t, jobqueue.Faulted, job.Status())
	assert.ErrorIs(t, job.Err(), jobqueue.ErrCancelled)
	assert.Equal(t, 0, h.c.PendingJobs("station-a"))
	_, ok := h.store.Get("station-a")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			h.clock.Advance(time.Minute)
			h.c.Update()
		}
	})
	assert.Equal(t, 0, h.c.Worlds())
	assert.Equal(t, 0, h.spawner.jobs[0].ran, "cancelled before its first step")
	assert.Equal(t, 0, h.queue.Len())
}

func TestController_CancelledSpawnRestoresOffer(t *testing.T) {
	h := newHarness(t)
	h.spawner.steps = 100
	d := h.station(t, "station-a")
	before := d.MissionList()
	nextOffer := d.NextOffer

	h.claim(t, "station-a", 2)
	require.True(t, d.Claimed)
	h.c.jobs[0].job.Cancel()
	h.c.Update()

	assert.False(t, d.Claimed)
	assert.False(t, d.HasActiveMission())
	assert.False(t, d.Cooldown)
	assert.Equal(t, before, d.MissionList())
	assert.Equal(t, nextOffer, d.NextOffer)
	assert.Equal(t, 0, h.c.TrackedJobs())
	_, bound := h.c.World("station-a")
	assert.False(t, bound)

	kinds := h.recorder.kinds("station-a")
	assert.Equal(t, core.EventSpawnFailed, kinds[len(kinds)-1])

	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.False(t, snap.Claimed)
	assert.Len(t, snap.Missions, 6)
}

func TestController_EmptyCatalogOffersNothing(t *testing.T) {
	h := newHarness(t)
	h.c.deps.Generator.SetCatalog(nil)

	h.c.AddStation(StationAddedMessage{Station: "station-a"})
	assert.NotPanics(t, h.c.Update)

	d, ok := h.store.Get("station-a")
	require.True(t, ok)
	assert.Empty(t, d.Missions)
	assert.False(t, d.Cooldown)
	assert.ErrorIs(t, h.c.Claim(ClaimMessage{Station: "station-a", Index: 0}), ErrUnknownMission)
	assert.NotContains(t, h.recorder.kinds("station-a"), core.EventMissionsGenerated)

	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.Empty(t, snap.Missions)

	h.c.deps.Generator.SetCatalog(testCatalog)
	h.clock.Advance(780 * time.Second)
	h.c.Update()
	assert.Len(t, d.Missions, 6)
}

func TestController_StationRemovedDespawnsBoundWorld(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	h.claim(t, "station-a", 1)
	h.c.Update()
	world, ok := h.c.World("station-a")
	require.True(t, ok)

	h.c.RemoveStation(StationRemovedMessage{Station: "station-a"})

	assert.Equal(t, []core.WorldID{world.ID}, h.spawner.despawned)
	assert.Equal(t, 0, h.c.Worlds())

	// later shutdown of the despawned world is a no-op
	assert.NotPanics(t, func() { h.c.WorldShutdown(WorldShutdownMessage{World: world.ID}) })
}

func TestController_FTLHoldsOffer(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	h.claim(t, "station-a", 0)
	h.c.Update()
	require.NoError(t, h.c.Finish(FinishMessage{Station: "station-a", Success: true}))
	held := d.NextOffer

	h.transit["station-a"] = true
	h.clock.Advance(800 * time.Second)
	generated := len(h.recorder.kinds("station-a"))
	pushes := h.sink.Pushes("station-a")

	for i := 0; i < 3; i++ {
		h.c.Update()
		assert.True(t, d.Cooldown)
		assert.Equal(t, held, d.NextOffer)
		assert.Empty(t, d.Missions)

		snap, ok := h.sink.Latest("station-a")
		require.True(t, ok)
		assert.True(t, snap.Cooldown)
		assert.Empty(t, snap.Missions)
		h.clock.Advance(time.Second)
	}
	assert.Len(t, h.recorder.kinds("station-a"), generated)
	assert.LessOrEqual(t, h.sink.Pushes("station-a"), pushes+1, "the hold is pushed once, not every tick")

	h.transit["station-a"] = false
	h.c.Update()
	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
	assert.Equal(t, h.clock.Now().Add(780*time.Second), d.NextOffer)

	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.False(t, snap.Cooldown)
	assert.Len(t, snap.Missions, 6)
}

func TestController_FTLHoldPushedWhenCooldownAlreadyCleared(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	pushes := h.sink.Pushes("station-a")

	h.transit["station-a"] = true
	h.clock.Advance(800 * time.Second)
	h.c.Update()

	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.True(t, snap.Cooldown)
	assert.Equal(t, pushes+1, h.sink.Pushes("station-a"))

	h.c.Update()
	assert.Equal(t, pushes+1, h.sink.Pushes("station-a"))
}

func TestController_SetTransitHoldsOffer(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	offered := d.MissionList()

	assert.ErrorIs(t, h.c.SetTransit(TransitChangedMessage{Station: "nowhere", InTransit: true}), ErrUnknownStation)

	require.NoError(t, h.c.SetTransit(TransitChangedMessage{Station: "station-a", InTransit: true}))
	h.clock.Advance(800 * time.Second)
	h.c.Update()

	assert.True(t, d.Cooldown)
	assert.Equal(t, offered, d.MissionList(), "held offer keeps its batch")
	snap, ok := h.sink.Latest("station-a")
	require.True(t, ok)
	assert.True(t, snap.Cooldown)

	require.NoError(t, h.c.SetTransit(TransitChangedMessage{Station: "station-a", InTransit: false}))
	h.c.Update()

	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
	assert.Contains(t, h.recorder.kinds("station-a"), core.EventOfferResumed)
}

func TestController_SetTransitIgnoredWhenSuspensionDisabled(t *testing.T) {
	h := newHarness(t)
	h.c.cfg.TravelSuspension = false
	d := h.station(t, "station-a")

	require.NoError(t, h.c.SetTransit(TransitChangedMessage{Station: "station-a", InTransit: true}))
	h.clock.Advance(800 * time.Second)
	h.c.Update()

	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
}

func TestController_RemoveStationDropsTransitFlag(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	require.NoError(t, h.c.SetTransit(TransitChangedMessage{Station: "station-a", InTransit: true}))

	h.c.RemoveStation(StationRemovedMessage{Station: "station-a"})
	d := h.station(t, "station-a")

	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
}

func TestController_FTLIgnoredWhenSuspensionDisabled(t *testing.T) {
	h := newHarness(t)
	h.c.cfg.TravelSuspension = false
	h.transit["station-a"] = true

	d := h.station(t, "station-a")

	assert.False(t, d.Cooldown)
	assert.Len(t, d.Missions, 6)
}

func TestController_RotatingOfferRegeneratesEachCooldown(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	first := d.MissionList()

	h.clock.Advance(780 * time.Second)
	h.c.Update()

	assert.Len(t, d.Missions, 6)
	assert.NotEqual(t, first, d.MissionList())
	assert.Equal(t, h.clock.Now().Add(780*time.Second), d.NextOffer)
}

func TestController_StaleSpawnCompletionIsIgnored(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	h.claim(t, "station-a", 1)

	// supersede the claim before its job runs
	d.Release()
	h.claim(t, "station-a", 2)
	require.Equal(t, 2, h.c.TrackedJobs())

	h.c.Update()

	world, ok := h.c.World("station-a")
	require.True(t, ok)
	assert.Equal(t, core.MissionIndex(2), world.Params.Index)
	assert.True(t, d.IsActive(2))
	assert.Equal(t, []core.WorldID{"world-1"}, h.spawner.despawned, "orphan world of the stale job")
}

func TestController_WorldShutdownFinishesExpedition(t *testing.T) {
	h := newHarness(t)
	d := h.station(t, "station-a")
	h.claim(t, "station-a", 4)
	h.c.Update()
	world, _ := h.c.World("station-a")

	h.c.WorldShutdown(WorldShutdownMessage{World: world.ID})

	assert.False(t, d.HasActiveMission())
	assert.True(t, d.Cooldown)
	assert.Equal(t, 900*time.Second, d.CooldownDuration, "world went away without completing")
	assert.Equal(t, []announcement{{station: "station-a", message: MsgMissionFailed}}, h.announcer.sent)
	assert.Empty(t, h.spawner.despawned)
	assert.Equal(t, 0, h.c.Worlds())

	assert.ErrorIs(t, h.c.Finish(FinishMessage{Station: "station-a", Success: true}), ErrNotActive)
}

func TestController_WorldShutdownAfterCompletionRewards(t *testing.T) {
	h := newHarness(t)
	h.consoles["console-1"] = core.Console{ID: "console-1", Placement: &core.Placement{Parent: "station-a"}}
	h.station(t, "station-a")
	h.claim(t, "station-a", 4)
	h.c.Update()
	world, _ := h.c.World("station-a")
	world.Completed = true

	h.c.WorldShutdown(WorldShutdownMessage{World: world.ID})

	assert.Len(t, h.rewards.spawned, 1)
	assert.Equal(t, []announcement{{station: "station-a", message: MsgMissionCompleted}}, h.announcer.sent)
}

func TestController_RewardWarningsDoNotBlockCompletion(t *testing.T) {
	tests := []struct {
		name     string
		consoles fakeConsoles
	}{
		{name: "console missing", consoles: fakeConsoles{}},
		{name: "console without placement", consoles: fakeConsoles{"console-1": {ID: "console-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			for k, v := range tt.consoles {
				h.consoles[k] = v
			}
			d := h.station(t, "station-a")
			h.claim(t, "station-a", 0)
			h.c.Update()

			require.NoError(t, h.c.Finish(FinishMessage{Station: "station-a", Success: true}))

			assert.Empty(t, h.rewards.spawned)
			assert.True(t, d.Cooldown)
			assert.Equal(t, 780*time.Second, d.CooldownDuration)
		})
	}
}

func TestController_UnknownDifficultyGetsDefaultReward(t *testing.T) {
	h := newHarness(t)
	h.consoles["console-1"] = core.Console{ID: "console-1", Placement: &core.Placement{}}
	h.c.cfg.Rewards = map[core.DifficultyID]string{}
	h.station(t, "station-a")
	h.claim(t, "station-a", 0)
	h.c.Update()

	require.NoError(t, h.c.Finish(FinishMessage{Station: "station-a", Success: true}))

	require.Len(t, h.rewards.spawned, 1)
	assert.Equal(t, "SpaceCashExpeditionT1", h.rewards.spawned[0].proto)
}

func TestController_ReentrantRegenerateIsSkipped(t *testing.T) {
	h := newHarness(t)
	reentered := 0
	h.recorder.hook = func(e *core.ExpeditionEvent) {
		if e.Kind == core.EventMissionsGenerated && reentered == 0 {
			reentered++
			assert.NoError(t, h.c.Regenerate(RegenerateMessage{Station: e.Station}))
		}
	}

	d := h.station(t, "station-a")

	assert.Equal(t, 1, reentered)
	assert.Len(t, d.Missions, 6)
	assert.False(t, d.Generating())
	generated := 0
	for _, k := range h.recorder.kinds("station-a") {
		if k == core.EventMissionsGenerated {
			generated++
		}
	}
	assert.Equal(t, 1, generated)
}

func TestController_RegenerateWhileActiveIsRejected(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	h.claim(t, "station-a", 0)

	assert.ErrorIs(t, h.c.Regenerate(RegenerateMessage{Station: "station-a"}), ErrMissionActive)
}

func TestController_RefreshPushesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	pushes := h.sink.Pushes("station-a")

	snap, err := h.c.Refresh(RefreshMessage{Station: "station-a"})

	require.NoError(t, err)
	assert.Len(t, snap.Missions, 6)
	assert.Equal(t, pushes+1, h.sink.Pushes("station-a"))

	_, err = h.c.Refresh(RefreshMessage{Station: "nowhere"})
	assert.ErrorIs(t, err, ErrUnknownStation)
}

func TestController_SetCooldownShiftsPendingOffers(t *testing.T) {
	h := newHarness(t)
	a := h.station(t, "station-a")
	b := h.station(t, "station-b")
	nextA, nextB := a.NextOffer, b.NextOffer

	h.c.SetCooldown(600 * time.Second)

	assert.Equal(t, nextA.Add(-180*time.Second), a.NextOffer)
	assert.Equal(t, nextB.Add(-180*time.Second), b.NextOffer)
	assert.Equal(t, 600*time.Second, h.c.Config().Cooldown)

	h.c.SetFailedCooldown(1200 * time.Second)
	assert.Equal(t, nextA.Add(-180*time.Second), a.NextOffer, "failed cooldown applies to future failures only")
	assert.Equal(t, 1200*time.Second, h.c.Config().FailedCooldown)
}

func TestController_ActiveMissionHasJobOrWorld(t *testing.T) {
	h := newHarness(t)
	h.spawner.steps = 3
	d := h.station(t, "station-a")
	h.claim(t, "station-a", 2)

	for i := 0; i < 5; i++ {
		_, bound := h.c.World("station-a")
		if d.HasActiveMission() {
			assert.True(t, bound || h.c.PendingJobs("station-a") > 0, "tick %d", i)
		}
		assert.False(t, bound && h.c.PendingJobs("station-a") > 0, "tick %d", i)
		h.c.Update()
	}
}

func TestController_TicksCount(t *testing.T) {
	h := newHarness(t)
	h.c.Update()
	h.c.Update()
	assert.Equal(t, uint64(2), h.c.Ticks())
}

func orderOf(id core.DifficultyID) int {
	for _, d := range testCatalog {
		if d.ID == id {
			return d.Order
		}
	}
	return -1
}

func TestController_CompleteObjective(t *testing.T) {
	h := newHarness(t)
	h.station(t, "station-a")
	h.claim(t, "station-a", 1)
	h.c.Update()
	world, _ := h.c.World("station-a")

	require.NoError(t, h.c.CompleteObjective(ObjectiveCompletedMessage{World: world.ID}))
	assert.True(t, world.Completed)

	assert.ErrorIs(t, h.c.CompleteObjective(ObjectiveCompletedMessage{World: "gone"}), ErrNotActive)
}
