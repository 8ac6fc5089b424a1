package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// HistoryExport is the root JSON structure of an export file.
type HistoryExport struct {
	ExportedAt time.Time        `json:"exportedAt" yaml:"exportedAt"`
	Stations   []StationHistory `json:"stations" yaml:"stations"`
}

// StationHistory is one station's audit trail, oldest first.
type StationHistory struct {
	Station string      `json:"station" yaml:"station"`
	Events  []EventJSON `json:"events" yaml:"events"`
}

// EventJSON is the export shape of one expedition event.
type EventJSON struct {
	ID          uint                `json:"id" yaml:"id"`
	Time        time.Time           `json:"time" yaml:"time"`
	Kind        string              `json:"kind" yaml:"kind"`
	Console     string              `json:"console,omitempty" yaml:"console,omitempty"`
	NextOffer   time.Time           `json:"nextOffer" yaml:"nextOffer"`
	CooldownSec float64             `json:"cooldownSec" yaml:"cooldownSec"`
	Mission     *core.MissionParams `json:"mission,omitempty" yaml:"mission,omitempty"`
	Detail      string              `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewHistoryExport groups events by station, keeping stations in the
// order they first appear. Events are expected oldest first.
func NewHistoryExport(at time.Time, events []core.ExpeditionEvent) HistoryExport {
	export := HistoryExport{ExportedAt: at.UTC(), Stations: []StationHistory{}}
	index := make(map[core.StationID]int)

	for _, e := range events {
		i, ok := index[e.Station]
		if !ok {
			i = len(export.Stations)
			index[e.Station] = i
			export.Stations = append(export.Stations, StationHistory{Station: string(e.Station), Events: []EventJSON{}})
		}
		ej := EventJSON{
			ID:          e.ID,
			Time:        e.Time,
			Kind:        string(e.Kind),
			Console:     string(e.Console),
			NextOffer:   e.NextOffer,
			CooldownSec: e.Cooldown.Seconds(),
			Mission:     e.Mission,
			Detail:      e.Detail,
		}
		export.Stations[i].Events = append(export.Stations[i].Events, ej)
	}
	return export
}

// WriteExport writes export as JSON to path, gzipped when compress is set.
func WriteExport(path string, export HistoryExport, compress bool) error {
	if compress {
		return writeGzipJSON(path, export)
	}
	return writeJSON(path, export)
}

// exportJSON writes the history to a (optionally gzipped) JSON file.
// Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := export.ExportedAt.Format("20060102_150405")
	filename := fmt.Sprintf("expeditions_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := WriteExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() HistoryExport {
	var events []core.ExpeditionEvent
	for _, station := range b.order {
		events = append(events, b.history[station]...)
	}
	return NewHistoryExport(b.now(), events)
}

func writeJSON(path string, data HistoryExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data HistoryExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
