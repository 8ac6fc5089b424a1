// Command expeditiond runs the expedition mission scheduler. Commands are
// read line by line from stdin (":CLAIM: station-1 console-1 0") and every
// reply is written to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/time/rate"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/internal/console"
	wsconsole "github.com/stickycheZ101/HardLight/internal/console/websocket"
	"github.com/stickycheZ101/HardLight/internal/dispatcher"
	"github.com/stickycheZ101/HardLight/internal/expedition"
	"github.com/stickycheZ101/HardLight/internal/generator"
	"github.com/stickycheZ101/HardLight/internal/influx"
	"github.com/stickycheZ101/HardLight/internal/jobqueue"
	"github.com/stickycheZ101/HardLight/internal/lifecycle"
	"github.com/stickycheZ101/HardLight/internal/logging"
	"github.com/stickycheZ101/HardLight/internal/monitor"
	intOtel "github.com/stickycheZ101/HardLight/internal/otel"
	"github.com/stickycheZ101/HardLight/internal/storage"
	"github.com/stickycheZ101/HardLight/internal/worker"
	"github.com/stickycheZ101/HardLight/internal/worldgen"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "expeditiond"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// SessionID tags every log record of this run.
	SessionID = uuid.NewString()

	SessionStartTime time.Time = time.Now()
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "expeditiond: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	// stdout carries command replies; bootstrap logs go to stderr
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logOut, closeLogging := setupLogging()
	defer closeLogging()

	Logger.Info("Starting expedition scheduler", "version", CurrentVersion, "build", BuildDate, "session", SessionID)

	backend, err := initStorage(logOut)
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	influxManager := initInflux(logOut)
	defer func() {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close influx", "error", err)
		}
	}()

	consoleSync := console.NewSync()
	var publisher *wsconsole.Publisher
	consoleCfg := config.GetConsoleConfig()
	if consoleCfg.WebsocketEnabled {
		publisher = wsconsole.New(wsconsole.Config{
			URL:      consoleCfg.URL,
			Secret:   consoleCfg.Secret,
			Instance: viper.GetString("instanceName"),
		}, Logger)
		if err := publisher.Init(); err != nil {
			Logger.Error("Console websocket unavailable, continuing without it", "url", consoleCfg.URL, "error", err)
			_ = publisher.Close()
			publisher = nil
		} else {
			consoleSync.AddSink(publisher)
			Logger.Info("Console websocket connected", "url", consoleCfg.URL)
		}
	}
	defer func() {
		if publisher != nil {
			sent, dropped := publisher.Stats()
			Logger.Info("Closing console websocket", "sent", sent, "dropped", dropped)
			_ = publisher.Close()
		}
	}()

	queue, err := jobqueue.New()
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}
	defer queue.Shutdown()

	expCfg, err := config.GetExpeditionConfig()
	if err != nil {
		return fmt.Errorf("failed to load expedition config: %w", err)
	}
	wgCfg := config.GetWorldgenConfig()
	consoles := worldgen.NewConsoles()
	seed := rand.Uint64()

	controller := lifecycle.New(lifecycle.Dependencies{
		Store:     expedition.NewStore(),
		Queue:     queue,
		Generator: generator.New(rand.New(rand.NewPCG(seed, seed>>1)), expCfg.Difficulties, expCfg.MissionLimit),
		Sync:      consoleSync,
		Spawner: worldgen.NewSpawner(worldgen.Config{
			StageDelay:  wgCfg.StageDelay,
			Timeout:     wgCfg.Timeout,
			FailureRate: wgCfg.FailureRate,
		}, nil, nil, Logger),
		Rewards:   worldgen.NewRewards(Logger),
		Announcer: worldgen.NewAnnouncer(Logger),
		Consoles:  consoles,
		Recorder:  lifecycle.MultiRecorder{backend, influxRecorder(influxManager)},
		Logger:    Logger,
	}, lifecycle.Config{
		Cooldown:         expCfg.Cooldown,
		FailedCooldown:   expCfg.FailedCooldown,
		TravelSuspension: expCfg.TravelSuspension,
		TravelTime:       expCfg.TravelTime,
		JobTimeBudget:    expCfg.JobTimeBudget,
		Rewards:          expCfg.RewardMap(),
		DefaultReward:    expCfg.DefaultReward,
	})

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Controller:   controller,
		Consoles:     consoles,
		Logger:       Logger,
		ConsoleRate:  rate.Limit(consoleCfg.RequestRate),
		ConsoleBurst: consoleCfg.RequestBurst,
	}, backend)

	monitorService := monitor.NewService(monitor.Dependencies{
		Source:     controller,
		Pending:    eventDispatcher.Pending,
		LastWrite:  workerManager.GetLastDBWriteDuration,
		Sinks:      performanceSinks(backend, influxManager),
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Interval:   viper.GetDuration("monitor.interval"),
		Logger:     Logger,
	})
	workerManager.SetStatus(monitorService)
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Info("Worker handlers registered with dispatcher")

	// cooldown edits on disk go through the tick goroutine like any command
	config.Watch(func(cfg config.ExpeditionConfig, err error) {
		if err != nil {
			Logger.Error("Ignoring expedition config reload", "error", err)
			return
		}
		_, err = eventDispatcher.Dispatch(dispatcher.Event{
			Command: worker.CmdCooldowns,
			Args: []string{
				fmt.Sprint(cfg.Cooldown.Seconds()),
				fmt.Sprint(cfg.FailedCooldown.Seconds()),
			},
		})
		if err != nil {
			Logger.Error("Failed to queue cooldown reload", "error", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readCommands(ctx, os.Stdin, os.Stdout, eventDispatcher, stop)

	tick := viper.GetDuration("tickInterval")
	Logger.Info("Scheduler running", "tick", tick, "storage", config.GetStorageConfig().Type)
	runTicks(ctx, tick, eventDispatcher, controller, monitorService)

	Logger.Info("Shutting down", "ticks", controller.Ticks(), "stations", controller.Stations())
	// run whatever arrived before the signal
	eventDispatcher.Drain()
	controller.Update()
	return nil
}

// runTicks drives the simulation until ctx is cancelled. Deferred commands
// run first so the controller sees them in the same tick.
func runTicks(ctx context.Context, interval time.Duration, d *dispatcher.Dispatcher, c *lifecycle.Controller, m *monitor.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			d.Drain()
			c.Update()
			m.Observe(time.Since(start))
		}
	}
}

// setupLogging opens the session log file and rebuilds the slog stack with
// the configured level, OTel and Graylog sinks.
func setupLogging() (*os.File, func()) {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	logFilePath := logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	if _, err := os.Stat(logFilePath); err == nil {
		_ = os.Rename(logFilePath, logFilePath+".old")
	}
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		logFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			Version:      CurrentVersion,
			InstanceID:   SessionID,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	var gelfSink *logging.GELFSink
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gelfSink, err = logging.NewGELFSink(graylogCfg.Address, viper.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, gelfSink.Handler())
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	var out *os.File
	if logFile != nil {
		out = logFile
	} else {
		out = os.Stderr
	}
	SlogManager.Setup(out, viper.GetString("logLevel"), otelLogProvider, extra...)

	instance := viper.GetString("instanceName")
	SlogManager.WithContext(func() []slog.Attr {
		return []slog.Attr{
			slog.String("instance", instance),
			slog.String("session", SessionID),
		}
	})
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath)

	return out, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
		if OTelProvider != nil {
			_ = OTelProvider.Shutdown(ctx)
		}
		if gelfSink != nil {
			_ = gelfSink.Close()
		}
		if logFile != nil {
			_ = logFile.Close()
		}
	}
}

func initInflux(logOut *os.File) *influx.Manager {
	influxCfg := config.GetInfluxConfig()
	backupPath := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405")))

	m := influx.NewManager(influx.Config{
		Enabled:  influxCfg.Enabled,
		Protocol: influxCfg.Protocol,
		Host:     influxCfg.Host,
		Port:     influxCfg.Port,
		Token:    influxCfg.Token,
		Org:      influxCfg.Org,
		Instance: viper.GetString("instanceName"),
	}, logging.NewZerolog(logOut, viper.GetString("logLevel"), "influx"), backupPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil && !errors.Is(err, influx.ErrDisabled) {
		Logger.Error("Failed to set up influx", "error", err)
	}
	return m
}

// influxRecorder returns nil while influx is switched off so the
// MultiRecorder skips it.
func influxRecorder(m *influx.Manager) lifecycle.Recorder {
	if !config.GetInfluxConfig().Enabled {
		return nil
	}
	return m
}

func performanceSinks(backend storage.Backend, m *influx.Manager) []monitor.PerformanceSink {
	var sinks []monitor.PerformanceSink
	if p, ok := backend.(storage.PerformanceRecorder); ok {
		sinks = append(sinks, p)
	}
	if config.GetInfluxConfig().Enabled {
		sinks = append(sinks, m)
	}
	return sinks
}
