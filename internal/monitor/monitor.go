// Package monitor samples the tick loop's load and publishes it as a JSON
// status, a status file and performance points.
package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Source is the scheduler state the monitor reads. It is only called from
// the tick goroutine.
type Source interface {
	Ticks() uint64
	Stations() int
	QueueLength() int
	TrackedJobs() int
	Worlds() int
}

// PerformanceSink receives every sample, e.g. influx or the history DB.
type PerformanceSink interface {
	RecordPerformance(p core.PerformanceSample) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	Pending    func() int           // queued inbound commands, optional
	LastWrite  func() time.Duration // last history flush, optional
	Sinks      []PerformanceSink
	StatusPath string // status.json is rewritten on every sample when set
	Interval   time.Duration
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Status is the JSON view of the latest sample.
type Status struct {
	Time            time.Time `json:"time"`
	Tick            uint64    `json:"tick"`
	Stations        int       `json:"stations"`
	QueueLength     int       `json:"queueLength"`
	TrackedJobs     int       `json:"trackedJobs"`
	Worlds          int       `json:"worlds"`
	PendingCommands int       `json:"pendingCommands"`
	TickTimeMs      float64   `json:"tickTimeMs"`
	MaxTickTimeMs   float64   `json:"maxTickTimeMs"`
	LastWriteMs     float64   `json:"lastWriteMs"`
}

// Service samples on the tick goroutine and serves the latest status to
// any goroutine.
type Service struct {
	deps Dependencies

	next    time.Time
	maxTick time.Duration

	mu     sync.RWMutex
	latest Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{deps: deps}
}

// Observe is called once per tick with how long the tick took. A sample is
// taken when the interval has elapsed since the previous one.
func (s *Service) Observe(tickTime time.Duration) {
	if tickTime > s.maxTick {
		s.maxTick = tickTime
	}

	now := s.deps.Clock()
	if now.Before(s.next) {
		return
	}
	s.next = now.Add(s.deps.Interval)
	s.Sample(tickTime)
}

// Sample records the current load immediately. Tick goroutine only.
func (s *Service) Sample(tickTime time.Duration) core.PerformanceSample {
	src := s.deps.Source
	p := core.PerformanceSample{
		Time:        s.deps.Clock(),
		Tick:        src.Ticks(),
		Stations:    src.Stations(),
		QueueLength: src.QueueLength(),
		TrackedJobs: src.TrackedJobs(),
		Worlds:      src.Worlds(),
		TickTime:    tickTime,
	}
	if s.deps.Pending != nil {
		p.PendingCommands = s.deps.Pending()
	}
	if s.deps.LastWrite != nil {
		p.LastWrite = s.deps.LastWrite()
	}

	status := Status{
		Time:            p.Time,
		Tick:            p.Tick,
		Stations:        p.Stations,
		QueueLength:     p.QueueLength,
		TrackedJobs:     p.TrackedJobs,
		Worlds:          p.Worlds,
		PendingCommands: p.PendingCommands,
		TickTimeMs:      ms(p.TickTime),
		MaxTickTimeMs:   ms(s.maxTick),
		LastWriteMs:     ms(p.LastWrite),
	}
	s.maxTick = 0

	s.mu.Lock()
	s.latest = status
	s.mu.Unlock()

	for _, sink := range s.deps.Sinks {
		if err := sink.RecordPerformance(p); err != nil {
			s.deps.Logger.Warn("Error recording performance sample", "error", err)
		}
	}
	if s.deps.StatusPath != "" {
		if err := s.writeStatusFile(status); err != nil {
			s.deps.Logger.Error("Error writing status file", "path", s.deps.StatusPath, "error", err)
		}
	}
	return p
}

// Status returns the latest sample.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// StatusJSON returns the latest sample as indented JSON.
func (s *Service) StatusJSON() (string, error) {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Service) writeStatusFile(status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
