package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stickycheZ101/HardLight/internal/config"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

func fixedBackend(cfg config.MemoryConfig) *Backend {
	b := New(cfg)
	b.now = func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) }
	return b
}

func seed(b *Backend) {
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	_ = b.RecordEvent(&core.ExpeditionEvent{Time: at, Station: "station-1", Kind: core.EventMissionsGenerated, NextOffer: at.Add(780 * time.Second), Cooldown: 780 * time.Second})
	_ = b.RecordEvent(&core.ExpeditionEvent{
		Time:    at.Add(time.Minute),
		Station: "station-1",
		Kind:    core.EventClaimed,
		Console: "console-1",
		Mission: &core.MissionParams{Index: 2, Type: core.MissionTypeElimination, Seed: 12, Difficulty: "NFExtreme"},
	})
	_ = b.RecordEvent(&core.ExpeditionEvent{Time: at, Station: "station-2", Kind: core.EventFailed, Detail: "world shut down"})
}

func TestBuildExport(t *testing.T) {
	b := fixedBackend(config.MemoryConfig{})
	seed(b)

	export := b.buildExport()

	if len(export.Stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(export.Stations))
	}
	s1 := export.Stations[0]
	if s1.Station != "station-1" || len(s1.Events) != 2 {
		t.Fatalf("unexpected first station %+v", s1)
	}
	if s1.Events[0].Kind != "missions_generated" || s1.Events[0].CooldownSec != 780 {
		t.Errorf("unexpected first event %+v", s1.Events[0])
	}
	if s1.Events[1].Mission == nil {
		t.Error("claimed event should carry its mission")
	}
	if export.Stations[1].Events[0].Detail != "world shut down" {
		t.Errorf("unexpected detail %q", export.Stations[1].Events[0].Detail)
	}
}

func TestClose_WritesPlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := fixedBackend(config.MemoryConfig{OutputDir: dir})
	seed(b)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if filepath.Base(path) != "expeditions_20260115_103000.json" {
		t.Errorf("unexpected export path %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var export HistoryExport
	if err := json.Unmarshal(raw, &export); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(export.Stations) != 2 {
		t.Errorf("expected 2 stations, got %d", len(export.Stations))
	}
	if !strings.Contains(string(raw), `"difficulty":"NFExtreme"`) {
		t.Error("mission params missing from export")
	}
}

func TestClose_WritesGzipJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	b := fixedBackend(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	seed(b)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("expected gzip export, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	var export HistoryExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("invalid gzip JSON: %v", err)
	}
	if export.Stations[0].Events[1].Console != "console-1" {
		t.Errorf("unexpected console %q", export.Stations[0].Events[1].Console)
	}
}

func TestNewHistoryExport_GroupsInterleavedStations(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []core.ExpeditionEvent{
		{ID: 1, Time: at, Station: "b", Kind: core.EventMissionsGenerated},
		{ID: 2, Time: at, Station: "a", Kind: core.EventMissionsGenerated},
		{ID: 3, Time: at.Add(time.Second), Station: "b", Kind: core.EventClaimed},
	}

	export := NewHistoryExport(at, events)

	if len(export.Stations) != 2 || export.Stations[0].Station != "b" || export.Stations[1].Station != "a" {
		t.Fatalf("unexpected station order %+v", export.Stations)
	}
	if got := export.Stations[0].Events; len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("unexpected events for b: %+v", got)
	}

	empty := NewHistoryExport(at, nil)
	if empty.Stations == nil || len(empty.Stations) != 0 {
		t.Errorf("expected empty non-nil stations, got %#v", empty.Stations)
	}
}
