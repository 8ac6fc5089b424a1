// Command expeditionctl inspects and maintains the expedition history
// database written by expeditiond.
//
//	expeditionctl [-config dir] [-sqlite file] export [-format json|yaml] [-gzip] [-out file] [station...]
//	expeditionctl [-config dir] [-sqlite file] prune -days 30
//	expeditionctl [-config dir] [-sqlite file] stats
package main

import (
	"compress/gzip"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/internal/database"
	"github.com/stickycheZ101/HardLight/internal/model"
	"github.com/stickycheZ101/HardLight/internal/model/convert"
	"github.com/stickycheZ101/HardLight/internal/storage/memory"
)

var errUsage = errors.New("usage: expeditionctl [-config dir] [-sqlite file] export|prune|stats [args]")

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	sqlitePath := flag.String("sqlite", "", "read a SQLite dump instead of postgres")
	flag.Parse()

	if err := run(*configDir, *sqlitePath, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir, sqlitePath string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	db, err := openDB(configDir, sqlitePath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	switch strings.ToLower(args[0]) {
	case "export":
		return runExport(db, args[1:], out)
	case "prune":
		return runPrune(db, args[1:], out)
	case "stats":
		return printStats(db, out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func openDB(configDir, sqlitePath string) (*gorm.DB, error) {
	if sqlitePath != "" {
		if _, err := os.Stat(sqlitePath); err != nil {
			return nil, fmt.Errorf("sqlite file: %w", err)
		}
		db, err := database.GetSqliteDB(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return db, nil
	}

	if err := config.Load(configDir); err != nil {
		fmt.Fprintln(os.Stderr, "using default config:", err)
	}
	cfg := config.GetDBConfig()
	db, err := database.GetPostgresDB(database.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	return db, nil
}

type exportOptions struct {
	format   string
	gzip     bool
	path     string
	stations []string
}

func runExport(db *gorm.DB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	opts := exportOptions{}
	fs.StringVar(&opts.format, "format", "json", "json or yaml")
	fs.BoolVar(&opts.gzip, "gzip", false, "gzip the output")
	fs.StringVar(&opts.path, "out", "", "output file (default expeditions_<time>.<format>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.stations = fs.Args()

	path, n, err := exportHistory(db, opts, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d events to %s\n", n, path)
	return nil
}

// exportHistory writes the events of opts.stations (all when empty),
// oldest first, and returns the file written and the event count.
func exportHistory(db *gorm.DB, opts exportOptions, now time.Time) (string, int, error) {
	if opts.format != "json" && opts.format != "yaml" {
		return "", 0, fmt.Errorf("unknown format %q", opts.format)
	}

	txStart := time.Now()
	var rows []model.ExpeditionEvent
	q := db.Model(&model.ExpeditionEvent{}).Order("time ASC").Order("id ASC")
	if len(opts.stations) > 0 {
		q = q.Where("station IN ?", opts.stations)
	}
	if err := q.Find(&rows).Error; err != nil {
		return "", 0, fmt.Errorf("error getting expedition events: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Got events in", time.Since(txStart))

	export := memory.NewHistoryExport(now, convert.ExpeditionEventsToCore(rows))

	path := opts.path
	if path == "" {
		path = fmt.Sprintf("expeditions_%s.%s", now.Format("20060102_150405"), opts.format)
		if opts.gzip {
			path += ".gz"
		}
	}

	if opts.format == "json" {
		return path, len(rows), memory.WriteExport(path, export, opts.gzip)
	}
	return path, len(rows), writeYAML(path, export, opts.gzip)
}

func writeYAML(path string, export memory.HistoryExport, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	var w io.Writer = f
	if compress {
		gz := gzip.NewWriter(f)
		defer func() { err = errors.Join(err, gz.Close()) }()
		w = gz
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("error encoding yaml: %w", err)
	}
	return enc.Close()
}

func runPrune(db *gorm.DB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	days := fs.Int("days", 90, "keep this many days of history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", *days)
	}

	txStart := time.Now()
	events, samples, err := pruneHistory(db, time.Now().UTC().AddDate(0, 0, -*days))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d events and %d performance samples in %s\n", events, samples, time.Since(txStart))

	txStart = time.Now()
	if err := vacuum(db); err != nil {
		return err
	}
	fmt.Fprintln(out, "Finished VACUUM in", time.Since(txStart))
	return nil
}

// pruneHistory deletes events and load samples older than cutoff.
func pruneHistory(db *gorm.DB, cutoff time.Time) (int64, int64, error) {
	res := db.Where("time < ?", cutoff).Delete(&model.ExpeditionEvent{})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("error deleting expedition events: %w", res.Error)
	}
	events := res.RowsAffected

	res = db.Where("time < ?", cutoff).Delete(&model.SchedulerPerformance{})
	if res.Error != nil {
		return events, 0, fmt.Errorf("error deleting performance samples: %w", res.Error)
	}
	return events, res.RowsAffected, nil
}

func vacuum(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return db.Exec("VACUUM").Error
	}

	tables := []string{}
	err := db.Raw(
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`,
	).Scan(&tables).Error
	if err != nil {
		return fmt.Errorf("error getting tables to vacuum: %w", err)
	}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf(`VACUUM (FULL) "%s"`, table)).Error; err != nil {
			return fmt.Errorf("error running VACUUM on table %s: %w", table, err)
		}
	}
	return nil
}

type stationStats struct {
	Station   string
	Events    int64
	Claimed   int64
	Completed int64
	Failed    int64
}

func loadStats(db *gorm.DB) ([]stationStats, error) {
	var stats []stationStats
	err := db.Model(&model.ExpeditionEvent{}).
		Select(`station,
			COUNT(*) AS events,
			SUM(CASE WHEN kind = 'claimed' THEN 1 ELSE 0 END) AS claimed,
			SUM(CASE WHEN kind = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN kind IN ('failed', 'spawn_failed') THEN 1 ELSE 0 END) AS failed`).
		Group("station").
		Order("station").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error aggregating expedition events: %w", err)
	}
	return stats, nil
}

func printStats(db *gorm.DB, out io.Writer) error {
	stats, err := loadStats(db)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tEVENTS\tCLAIMED\tCOMPLETED\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Station, s.Events, s.Claimed, s.Completed, s.Failed)
	}
	return tw.Flush()
}
