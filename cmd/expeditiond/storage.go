package main

import (
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/internal/database"
	"github.com/stickycheZ101/HardLight/internal/logging"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/internal/storage/memory"
	pgstorage "github.com/stickycheZ101/HardLight/internal/storage/postgres"
	sqlitestorage "github.com/stickycheZ101/HardLight/internal/storage/sqlite"
)

// dbManager is set when the postgres backend owns a connection pool.
var dbManager *database.Manager

func initStorage(logOut io.Writer) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg, logOut)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return nil, err
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, logOut io.Writer) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		dbCfg := config.GetDBConfig()
		dbManager = database.NewManager(database.Config{
			Host:     dbCfg.Host,
			Port:     dbCfg.Port,
			Username: dbCfg.Username,
			Password: dbCfg.Password,
			Database: dbCfg.Database,
		}, logging.NewZerolog(logOut, viper.GetString("logLevel"), "database"))
		dbManager.SqliteFilePath = storageCfg.SQLite.Path
		if err := dbManager.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if dbManager.ShouldSaveLocal {
			Logger.Warn("Postgres unavailable, history kept in local SQLite", "path", dbManager.SqliteFilePath)
		}
		Logger.Info("Postgres storage backend initialized", "host", dbCfg.Host)
		return pgstorage.New(pgstorage.Dependencies{
			DB:     dbManager.DB,
			Logger: Logger,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	default:
		Logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil
	}
}

func closeStorage(backend storage.Backend) {
	if backend == nil {
		return
	}
	if err := backend.Close(); err != nil {
		Logger.Error("Failed to close storage backend", "error", err)
	}
	if e, ok := backend.(storage.Exportable); ok && e.GetExportedFilePath() != "" {
		Logger.Info("History exported", "path", e.GetExportedFilePath())
	}
	if dbManager != nil {
		if err := dbManager.Close(); err != nil {
			Logger.Error("Failed to close database", "error", err)
		}
	}
}
