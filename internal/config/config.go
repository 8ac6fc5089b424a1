// Package config loads expedition.cfg.json through viper and exposes typed
// views of each section.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "expedition.cfg.json"

// EnvFileName is an optional dotenv file next to the config file. Its
// variables, and the process environment, override file values as
// EXPEDITION_<SECTION>_<KEY> (e.g. EXPEDITION_DB_PASSWORD).
const EnvFileName = ".env"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXPEDITION"

// RewardTier maps a difficulty to the reward prototype spawned on success.
type RewardTier struct {
	Difficulty core.DifficultyID `json:"difficulty" mapstructure:"difficulty"`
	Proto      string            `json:"proto" mapstructure:"proto"`
}

// ExpeditionConfig holds the scheduler tunables.
type ExpeditionConfig struct {
	Cooldown         time.Duration
	FailedCooldown   time.Duration
	TravelSuspension bool
	TravelTime       time.Duration
	JobTimeBudget    time.Duration
	MissionLimit     int
	Difficulties     []core.Difficulty
	Rewards          []RewardTier
	DefaultReward    string
}

// RewardMap indexes the reward tiers by difficulty.
func (c ExpeditionConfig) RewardMap() map[core.DifficultyID]string {
	out := make(map[core.DifficultyID]string, len(c.Rewards))
	for _, r := range c.Rewards {
		out[r.Difficulty] = r.Proto
	}
	return out
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	MaxPerStation  int    `json:"maxPerStation" mapstructure:"maxPerStation"`
}

// SQLiteConfig holds sqlite storage backend settings
type SQLiteConfig struct {
	Path         string
	DumpPath     string
	DumpInterval time.Duration
}

// StorageConfig selects and configures the history backend.
type StorageConfig struct {
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry log export settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
}

// GraylogConfig holds the GELF sink settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// ConsoleConfig holds the websocket console publisher settings.
type ConsoleConfig struct {
	WebsocketEnabled bool
	URL              string
	Secret           string
	// RequestRate is refresh/regenerate requests per second per station.
	RequestRate  float64
	RequestBurst int
}

// WorldgenConfig holds the simulated world generator settings.
type WorldgenConfig struct {
	StageDelay  time.Duration
	Timeout     time.Duration
	FailureRate float64
}

func setDefaults() {
	viper.SetDefault("instanceName", "expeditiond")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./expeditionlogs")
	viper.SetDefault("tickInterval", "50ms")
	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("expedition.cooldown", "780s")
	viper.SetDefault("expedition.failedCooldown", "900s")
	viper.SetDefault("expedition.travelSuspension", true)
	viper.SetDefault("expedition.travelTime", "50s")
	viper.SetDefault("expedition.jobTimeBudget", "2ms")
	viper.SetDefault("expedition.missionLimit", 6)
	viper.SetDefault("expedition.difficulties", []map[string]any{
		{"id": "NFModerate", "order": 0},
		{"id": "NFHazardous", "order": 1},
		{"id": "NFExtreme", "order": 2},
	})
	viper.SetDefault("expedition.rewards", []map[string]any{
		{"difficulty": "NFModerate", "proto": "SpaceCashExpeditionT1"},
		{"difficulty": "NFHazardous", "proto": "SpaceCashExpeditionT2"},
		{"difficulty": "NFExtreme", "proto": "SpaceCashExpeditionT3"},
	})
	viper.SetDefault("expedition.defaultReward", "SpaceCashExpeditionT1")

	viper.SetDefault("worldgen.stageDelay", "250ms")
	viper.SetDefault("worldgen.timeout", "2m")
	viper.SetDefault("worldgen.failureRate", 0.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./expeditions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.maxPerStation", 200)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./expeditions.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "expeditions")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "expedition-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "expedition-scheduler")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("console.websocket.enabled", false)
	viper.SetDefault("console.websocket.url", "ws://localhost:5000/api/consoles")
	viper.SetDefault("console.websocket.secret", "")
	viper.SetDefault("console.requestRate", 2.0)
	viper.SetDefault("console.requestBurst", 5)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, EnvFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading %s: %w", EnvFileName, err)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Watch calls fn with the reloaded expedition section every time the
// config file changes on disk. A section that fails to decode is passed
// with its error.
func Watch(fn func(ExpeditionConfig, error)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		fn(GetExpeditionConfig())
	})
	viper.WatchConfig()
}

// ErrInvalidExpedition is wrapped by every expedition section decode error.
var ErrInvalidExpedition = errors.New("invalid expedition config")

// GetExpeditionConfig returns the scheduler tunables.
func GetExpeditionConfig() (ExpeditionConfig, error) {
	cfg := ExpeditionConfig{
		TravelSuspension: viper.GetBool("expedition.travelSuspension"),
		MissionLimit:     viper.GetInt("expedition.missionLimit"),
		DefaultReward:    viper.GetString("expedition.defaultReward"),
	}

	var errs []error
	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"expedition.cooldown", &cfg.Cooldown},
		{"expedition.failedCooldown", &cfg.FailedCooldown},
		{"expedition.travelTime", &cfg.TravelTime},
		{"expedition.jobTimeBudget", &cfg.JobTimeBudget},
	} {
		d, err := GetSeconds(f.key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = d
	}

	if err := viper.UnmarshalKey("expedition.difficulties", &cfg.Difficulties); err != nil {
		errs = append(errs, fmt.Errorf("expedition.difficulties: %w", err))
	}
	for i, d := range cfg.Difficulties {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("expedition.difficulties[%d]: missing id", i))
		}
	}
	if err := viper.UnmarshalKey("expedition.rewards", &cfg.Rewards); err != nil {
		errs = append(errs, fmt.Errorf("expedition.rewards: %w", err))
	}
	if cfg.MissionLimit <= 0 {
		errs = append(errs, fmt.Errorf("expedition.missionLimit: %d is not positive", cfg.MissionLimit))
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidExpedition, errors.Join(errs...))
	}
	return cfg, nil
}

// GetSeconds reads a duration. Bare numbers, and strings without a unit,
// are seconds; other strings use time.ParseDuration syntax.
func GetSeconds(key string) (time.Duration, error) {
	raw := viper.Get(key)
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return secondsToDuration(key, secs)
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("%s: negative duration %s", key, d)
		}
		return d, nil
	}
	secs, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return secondsToDuration(key, secs)
}

func secondsToDuration(key string, secs float64) (time.Duration, error) {
	if secs < 0 {
		return 0, fmt.Errorf("%s: negative duration %gs", key, secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// GetStorageConfig returns the history backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			MaxPerStation:  viper.GetInt("storage.memory.maxPerStation"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetConsoleConfig returns the console publisher settings.
func GetConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		WebsocketEnabled: viper.GetBool("console.websocket.enabled"),
		URL:              viper.GetString("console.websocket.url"),
		Secret:           viper.GetString("console.websocket.secret"),
		RequestRate:      viper.GetFloat64("console.requestRate"),
		RequestBurst:     viper.GetInt("console.requestBurst"),
	}
}

// GetWorldgenConfig returns the simulated generator settings.
func GetWorldgenConfig() WorldgenConfig {
	return WorldgenConfig{
		StageDelay:  viper.GetDuration("worldgen.stageDelay"),
		Timeout:     viper.GetDuration("worldgen.timeout"),
		FailureRate: viper.GetFloat64("worldgen.failureRate"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
