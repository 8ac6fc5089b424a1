package worker

import (
	"fmt"

	"github.com/stickycheZ101/HardLight/internal/dispatcher"
	"github.com/stickycheZ101/HardLight/internal/lifecycle"
)

// Command names accepted from the host.
const (
	CmdClaim          = ":CLAIM:"
	CmdFinish         = ":FINISH:"
	CmdRefresh        = ":REFRESH:"
	CmdRegenerate     = ":MISSIONS:REGENERATE:"
	CmdStationAdd     = ":STATION:ADD:"
	CmdStationRemove  = ":STATION:REMOVE:"
	CmdStationFTL     = ":STATION:FTL:"
	CmdConsoleAdd     = ":CONSOLE:ADD:"
	CmdWorldComplete  = ":WORLD:COMPLETE:"
	CmdWorldShutdown  = ":WORLD:SHUTDOWN:"
	CmdHistory        = ":HISTORY:"
	CmdStatus         = ":STATUS:"
	CmdCooldowns      = ":CONFIG:COOLDOWNS:"
	defaultDeferQueue = 1000
)

// RegisterHandlers registers all command handlers with the dispatcher.
// Every handler touching expedition state is deferred to the tick goroutine.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Station lifecycle - block rather than lose a station
	d.Register(CmdStationAdd, m.handleStationAdd, dispatcher.Deferred(defaultDeferQueue), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CmdStationRemove, m.handleStationRemove, dispatcher.Deferred(defaultDeferQueue), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CmdConsoleAdd, m.handleConsoleAdd, dispatcher.Deferred(defaultDeferQueue), dispatcher.Logged())
	d.Register(CmdStationFTL, m.handleTransit, dispatcher.Deferred(defaultDeferQueue), dispatcher.Logged())

	// Console interactions
	d.Register(CmdClaim, m.handleClaim, dispatcher.Deferred(100), dispatcher.Logged())
	d.Register(CmdFinish, m.handleFinish, dispatcher.Deferred(100), dispatcher.Logged())
	d.Register(CmdRefresh, m.handleRefresh, dispatcher.Deferred(100), dispatcher.Logged())
	d.Register(CmdRegenerate, m.handleRegenerate, dispatcher.Deferred(100), dispatcher.Logged())

	// Mission world events - block rather than leak a world
	d.Register(CmdWorldComplete, m.handleWorldComplete, dispatcher.Deferred(defaultDeferQueue), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CmdWorldShutdown, m.handleWorldShutdown, dispatcher.Deferred(defaultDeferQueue), dispatcher.Blocking(), dispatcher.Logged())

	// Operator settings
	d.Register(CmdCooldowns, m.handleCooldowns, dispatcher.Deferred(10), dispatcher.Blocking(), dispatcher.Logged())

	// Reads served off the tick goroutine
	if m.backend != nil {
		d.Register(CmdHistory, m.handleHistory, dispatcher.Logged())
	}
	if m.deps.Status != nil {
		d.Register(CmdStatus, m.handleStatus)
	}
}

func (m *Manager) handleStationAdd(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseStationAdded(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to add station: %w", err)
	}
	m.deps.Controller.AddStation(msg)
	return nil, nil
}

func (m *Manager) handleStationRemove(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseStationRemoved(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to remove station: %w", err)
	}
	m.deps.Controller.RemoveStation(msg)
	delete(m.limiters, msg.Station)
	if m.deps.Consoles != nil {
		m.deps.Consoles.RemoveStation(msg.Station)
	}
	return nil, nil
}

func (m *Manager) handleConsoleAdd(e dispatcher.Event) (any, error) {
	c, err := m.deps.Parser.ParseConsole(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to register console: %w", err)
	}
	if m.deps.Consoles == nil {
		return nil, nil
	}
	m.deps.Consoles.Register(c)
	return nil, nil
}

func (m *Manager) handleTransit(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseTransit(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to update transit: %w", err)
	}
	if err := m.deps.Controller.SetTransit(msg); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *Manager) handleClaim(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseClaim(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to claim mission: %w", err)
	}
	if err := m.deps.Controller.Claim(msg); err != nil {
		return "rejected", err
	}
	return "claimed", nil
}

func (m *Manager) handleFinish(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseFinish(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to finish mission: %w", err)
	}
	return nil, m.deps.Controller.Finish(msg)
}

func (m *Manager) handleRefresh(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseRefresh(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh console: %w", err)
	}
	if !m.allow(msg.Station) {
		return nil, fmt.Errorf("refresh %s: %w", msg.Station, ErrThrottled)
	}
	return m.deps.Controller.Refresh(msg)
}

func (m *Manager) handleRegenerate(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseRegenerate(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate missions: %w", err)
	}
	if !m.allow(msg.Station) {
		return nil, fmt.Errorf("regenerate %s: %w", msg.Station, ErrThrottled)
	}
	return nil, m.deps.Controller.Regenerate(msg)
}

func (m *Manager) handleWorldComplete(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseObjectiveCompleted(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to complete objective: %w", err)
	}
	return nil, m.deps.Controller.CompleteObjective(msg)
}

func (m *Manager) handleWorldShutdown(e dispatcher.Event) (any, error) {
	msg, err := m.deps.Parser.ParseWorldShutdown(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to handle world shutdown: %w", err)
	}
	m.deps.Controller.WorldShutdown(msg)
	return nil, nil
}

func (m *Manager) handleCooldowns(e dispatcher.Event) (any, error) {
	u, err := m.deps.Parser.ParseCooldowns(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to update cooldowns: %w", err)
	}
	m.deps.Controller.SetCooldown(u.Cooldown)
	m.deps.Controller.SetFailedCooldown(u.FailedCooldown)
	m.deps.Logger.Info("cooldowns updated", "cooldown", u.Cooldown, "failedCooldown", u.FailedCooldown)
	return nil, nil
}

func (m *Manager) handleHistory(e dispatcher.Event) (any, error) {
	q, err := m.deps.Parser.ParseHistory(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return m.backend.History(q.Station, q.Limit)
}

func (m *Manager) handleStatus(e dispatcher.Event) (any, error) {
	return m.deps.Status.StatusJSON()
}

var _ Lifecycle = (*lifecycle.Controller)(nil)
