package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickycheZ101/HardLight/internal/model"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "expeditions"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=expeditions sslmode=disable", cfg.DSN())
}

func TestSetup_CreatesSchemaOnce(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	require.NoError(t, Setup(db))
	require.NoError(t, Setup(db))

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}

	var count int64
	require.NoError(t, db.Model(&model.SchedulerInfo{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetup_NilDB(t *testing.T) {
	assert.Error(t, Setup(nil))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)
	require.NoError(t, Setup(db))
	require.NoError(t, db.Create(&model.ExpeditionEvent{Station: "station-1", Kind: "claimed"}).Error)

	path := filepath.Join(t.TempDir(), "dump.db")
	// an existing file is replaced
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	_, err = DumpMemoryDBToDisk(db, path)
	require.NoError(t, err)

	disk, err := GetSqliteDB(path)
	require.NoError(t, err)
	var rows []model.ExpeditionEvent
	require.NoError(t, disk.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "station-1", rows[0].Station)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)
	_, err = DumpMemoryDBToDisk(db, "")
	assert.Error(t, err)
}

func TestManager_FallsBackToSqlite(t *testing.T) {
	m := NewManager(Config{Host: "127.0.0.1", Port: "1", Username: "x", Password: "x", Database: "x"}, zerolog.Nop())
	m.SqliteFilePath = filepath.Join(t.TempDir(), "fallback.db")

	require.NoError(t, m.Connect())
	defer m.Close()

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	assert.Equal(t, "sqlite", m.DB.Dialector.Name())
	require.NoError(t, m.Setup())
}
