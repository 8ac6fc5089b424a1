package postgres

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stickycheZ101/HardLight/internal/database"
	"github.com/stickycheZ101/HardLight/internal/model"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestBackend(t *testing.T, flush time.Duration) *Backend {
	t.Helper()
	b := New(Dependencies{
		DB:            openTestDB(t),
		Logger:        quietLogger(),
		FlushInterval: flush,
		BatchSize:     1000,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew_Defaults(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.Equal(t, defaultFlushInterval, b.deps.FlushInterval)
	assert.Equal(t, defaultBatchSize, b.deps.BatchSize)
	assert.NotNil(t, b.deps.Logger)
}

func TestInitClose(t *testing.T) {
	b := New(Dependencies{DB: openTestDB(t), Logger: quietLogger()})

	require.NoError(t, b.Init())
	assert.True(t, b.DB().Migrator().HasTable(&model.ExpeditionEvent{}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestInit_PostgresUnreachable(t *testing.T) {
	b := New(Dependencies{
		DBConfig: database.Config{Host: "127.0.0.1", Port: "1", Username: "x", Password: "x", Database: "x"},
		Logger:   quietLogger(),
	})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestRecordEvent_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t, time.Hour)

	require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{
		Time:    time.Now(),
		Station: "station-1",
		Kind:    core.EventClaimed,
		Mission: &core.MissionParams{Index: 1, Difficulty: "NFHazardous"},
	}))
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())
	assert.Greater(t, b.GetLastDBWriteDuration(), time.Duration(0))

	var count int64
	require.NoError(t, b.DB().Model(&model.ExpeditionEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHistory_FlushesAndOrdersNewestFirst(t *testing.T) {
	b := newTestBackend(t, time.Hour)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	kinds := []core.EventKind{core.EventMissionsGenerated, core.EventClaimed, core.EventSpawned, core.EventCompleted}
	for i, k := range kinds {
		require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{
			Time:     start.Add(time.Duration(i) * time.Second),
			Station:  "station-1",
			Kind:     k,
			Cooldown: 780 * time.Second,
		}))
	}
	require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{Time: start, Station: "station-2", Kind: core.EventFailed}))

	got, err := b.History("station-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, core.EventCompleted, got[0].Kind)
	assert.Equal(t, core.EventClaimed, got[2].Kind)
	assert.Equal(t, 780*time.Second, got[0].Cooldown)
	assert.NotZero(t, got[0].ID)

	all, err := b.History("station-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	other, err := b.History("station-2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, core.EventFailed, other[0].Kind)
}

func TestHistory_RoundTripsMission(t *testing.T) {
	b := newTestBackend(t, time.Hour)

	require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{
		Time:    time.Now(),
		Station: "station-1",
		Kind:    core.EventSpawned,
		Console: "console-3",
		Mission: &core.MissionParams{Index: 5, Type: core.MissionTypeElimination, Seed: -3, Difficulty: "NFExtreme"},
	}))

	got, err := b.History("station-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Mission)
	assert.Equal(t, core.MissionIndex(5), got[0].Mission.Index)
	assert.Equal(t, core.MissionTypeElimination, got[0].Mission.Type)
	assert.Equal(t, core.ConsoleID("console-3"), got[0].Console)
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	b := newTestBackend(t, 20*time.Millisecond)

	require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{Time: time.Now(), Station: "station-1", Kind: core.EventClaimed}))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClose_FlushesRemaining(t *testing.T) {
	db := openTestDB(t)
	b := New(Dependencies{DB: db, Logger: quietLogger(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordEvent(&core.ExpeditionEvent{Time: time.Now(), Station: "station-1", Kind: core.EventClaimed}))
	require.NoError(t, b.RecordPerformance(core.PerformanceSample{Time: time.Now(), Tick: 10, Stations: 1}))
	require.NoError(t, b.Close())

	var events, samples int64
	require.NoError(t, db.Model(&model.ExpeditionEvent{}).Count(&events).Error)
	require.NoError(t, db.Model(&model.SchedulerPerformance{}).Count(&samples).Error)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, int64(1), samples)

	assert.ErrorIs(t, b.RecordEvent(&core.ExpeditionEvent{Station: "station-1"}), storage.ErrClosed)
	assert.ErrorIs(t, b.RecordPerformance(core.PerformanceSample{}), storage.ErrClosed)
}

func TestHistory_NoDB(t *testing.T) {
	b := New(Dependencies{Logger: quietLogger()})
	_, err := b.History("station-1", 5)
	assert.Error(t, err)
}
