// Package postgres implements the storage.Backend interface using GORM
// with an internal write queue and a background DB writer goroutine.
// The sqlite backend reuses it on an in-memory database.
package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/stickycheZ101/HardLight/internal/database"
	"github.com/stickycheZ101/HardLight/internal/model"
	"github.com/stickycheZ101/HardLight/internal/model/convert"
	"github.com/stickycheZ101/HardLight/internal/queue"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultBatchSize     = 200
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects to postgres with DBConfig.
	DB       *gorm.DB
	DBConfig database.Config
	Logger   *slog.Logger

	FlushInterval time.Duration
	// BatchSize wakes the writer early once this many events are queued.
	BatchSize int
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	events *queue.Queue[model.ExpeditionEvent]
	perf   *queue.Queue[model.SchedulerPerformance]

	writeMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	lastWrite atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = defaultBatchSize
	}
	return &Backend{
		deps:   deps,
		events: queue.New[model.ExpeditionEvent](),
		perf:   queue.New[model.SchedulerPerformance](),
	}
}

// Init connects if needed, runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB(b.deps.DBConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	b.startDBWriter()
	return nil
}

// DB exposes the connection, e.g. for the sqlite dump loop.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	return nil
}

// RecordEvent converts and queues an expedition event.
func (b *Backend) RecordEvent(e *core.ExpeditionEvent) error {
	if b.closed.Load() {
		return storage.ErrClosed
	}
	b.events.Push(convert.CoreToExpeditionEvent(*e))
	return nil
}

// RecordPerformance converts and queues a load sample.
func (b *Backend) RecordPerformance(p core.PerformanceSample) error {
	if b.closed.Load() {
		return storage.ErrClosed
	}
	b.perf.Push(convert.CoreToPerformance(p))
	return nil
}

// History flushes pending writes and returns the station's most recent
// events, newest first.
func (b *Backend) History(station core.StationID, limit int) ([]core.ExpeditionEvent, error) {
	if b.deps.DB == nil {
		return nil, errors.New("no database connection")
	}
	if err := b.Flush(); err != nil {
		return nil, err
	}

	q := b.deps.DB.Where("station = ?", string(station)).Order("time desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.ExpeditionEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", station, err)
	}
	return convert.ExpeditionEventsToCore(rows), nil
}

// Pending returns the number of events waiting for the writer.
func (b *Backend) Pending() int {
	return b.events.Len()
}

// GetLastDBWriteDuration returns the duration of the last flush that wrote anything.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Flush writes everything queued so far.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return errors.New("no database connection")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	n, err := writeQueue(b.deps.DB, b.events, "expedition events", b.deps.Logger)
	if err != nil {
		return err
	}
	m, err := writeQueue(b.deps.DB, b.perf, "performance samples", b.deps.Logger)
	if err != nil {
		return err
	}
	if n+m > 0 {
		b.lastWrite.Store(int64(time.Since(start)))
	}
	return nil
}

// writeQueue writes all items from a queue to the database in a
// transaction. Failed batches go back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) (int, error) {
	items := q.Take(0)
	if len(items) == 0 {
		return 0, nil
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating "+name, "error", err, "count", len(items))
		tx.Rollback()
		q.Requeue(items)
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items)
		return 0, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return len(items), nil
}

// startDBWriter starts the background goroutine that drains the queues
// into the DB every FlushInterval, or earlier once a batch is full.
func (b *Backend) startDBWriter() {
	go func() {
		defer close(b.done)

		ticker := time.NewTicker(b.deps.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				if err := b.Flush(); err != nil {
					b.deps.Logger.Error("Final flush failed", "error", err, "pending", b.events.Len())
				}
				return
			case <-ticker.C:
			case <-b.events.Ready():
				if b.events.Len() < b.deps.BatchSize {
					continue
				}
			}

			if err := b.Flush(); err != nil {
				b.deps.Logger.Warn("History flush failed, retrying", "error", err)
			}
		}
	}()
}
