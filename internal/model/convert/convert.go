// Package convert maps expedition history between core and GORM models.
package convert

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/stickycheZ101/HardLight/internal/model"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// CoreToExpeditionEvent converts a core event to its GORM row. The mission
// parameters are stored as a JSON column; a nil mission becomes SQL null.
func CoreToExpeditionEvent(e core.ExpeditionEvent) model.ExpeditionEvent {
	var mission datatypes.JSON
	if e.Mission != nil {
		if raw, err := json.Marshal(e.Mission); err == nil {
			mission = datatypes.JSON(raw)
		}
	}

	return model.ExpeditionEvent{
		ID:          e.ID,
		Time:        e.Time,
		Station:     string(e.Station),
		Kind:        string(e.Kind),
		Mission:     mission,
		Console:     string(e.Console),
		NextOffer:   e.NextOffer,
		CooldownSec: e.Cooldown.Seconds(),
		Detail:      e.Detail,
	}
}

// ExpeditionEventToCore converts a GORM row back to a core event.
func ExpeditionEventToCore(e model.ExpeditionEvent) core.ExpeditionEvent {
	var mission *core.MissionParams
	if len(e.Mission) > 0 && string(e.Mission) != "null" {
		var p core.MissionParams
		if err := json.Unmarshal(e.Mission, &p); err == nil {
			mission = &p
		}
	}

	return core.ExpeditionEvent{
		ID:        e.ID,
		Time:      e.Time,
		Station:   core.StationID(e.Station),
		Kind:      core.EventKind(e.Kind),
		Mission:   mission,
		Console:   core.ConsoleID(e.Console),
		NextOffer: e.NextOffer,
		Cooldown:  time.Duration(e.CooldownSec * float64(time.Second)),
		Detail:    e.Detail,
	}
}

// ExpeditionEventsToCore converts a slice of rows.
func ExpeditionEventsToCore(rows []model.ExpeditionEvent) []core.ExpeditionEvent {
	out := make([]core.ExpeditionEvent, len(rows))
	for i, r := range rows {
		out[i] = ExpeditionEventToCore(r)
	}
	return out
}

// CoreToPerformance converts a load sample to its GORM row.
func CoreToPerformance(p core.PerformanceSample) model.SchedulerPerformance {
	return model.SchedulerPerformance{
		Time:                p.Time,
		Tick:                p.Tick,
		Stations:            p.Stations,
		QueueLength:         p.QueueLength,
		TrackedJobs:         p.TrackedJobs,
		Worlds:              p.Worlds,
		PendingCommands:     p.PendingCommands,
		TickTimeMs:          float32(p.TickTime) / float32(time.Millisecond),
		LastWriteDurationMs: float32(p.LastWrite) / float32(time.Millisecond),
	}
}
