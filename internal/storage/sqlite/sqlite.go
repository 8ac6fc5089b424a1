// Package sqlitestorage keeps the expedition history in an in-memory
// SQLite database and periodically dumps it to disk via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are
// creating the database and the dump loop.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/internal/database"
	"github.com/stickycheZ101/HardLight/internal/storage/postgres"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*postgres.Backend
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend. An empty cfg.Path keeps the
// database in memory.
func New(cfg config.SQLiteConfig, logger *slog.Logger) (*Backend, error) {
	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		Backend:  postgres.New(postgres.Dependencies{DB: db, Logger: logger}),
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path == "" && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Close stops the dump goroutine, closes the GORM backend and writes a
// last snapshot.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done

	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.Path == "" && b.cfg.DumpPath != "" {
		if _, err := database.DumpMemoryDBToDisk(b.DB(), b.cfg.DumpPath); err != nil {
			return err
		}
	}
	return nil
}

// Dump flushes queued events and snapshots the database to DumpPath.
func (b *Backend) Dump() (time.Duration, error) {
	if err := b.Flush(); err != nil {
		return 0, err
	}
	return database.DumpMemoryDBToDisk(b.DB(), b.cfg.DumpPath)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			took, err := b.Dump()
			if err != nil {
				b.log.Error("Error dumping to disk", "error", err)
				continue
			}
			b.log.Debug("Dumped to disk", "duration", took, "path", b.cfg.DumpPath)
		}
	}
}
