// Package parser converts raw command arguments into typed lifecycle messages.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stickycheZ101/HardLight/internal/lifecycle"
	"github.com/stickycheZ101/HardLight/internal/util"
	"github.com/stickycheZ101/HardLight/pkg/core"
)

// ErrBadArgs is returned when a command carries too few or malformed arguments.
var ErrBadArgs = errors.New("bad command arguments")

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Engine-side scripts have no integer type and may serialize numbers as floats.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseBool accepts the engine's spellings of a boolean.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("parseBool: %q is not a boolean", s)
}

// Parser provides pure []string -> message conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func requireArgs(command string, args []string, n int) ([]string, error) {
	args = util.CleanArgs(args)
	if len(args) < n {
		return nil, fmt.Errorf("%s wants %d args, got %d: %w", command, n, len(args), ErrBadArgs)
	}
	for i := 0; i < n; i++ {
		if args[i] == "" {
			return nil, fmt.Errorf("%s arg %d is empty: %w", command, i, ErrBadArgs)
		}
	}
	return args, nil
}

func (p *Parser) station(command string, args []string) (core.StationID, error) {
	args, err := requireArgs(command, args, 1)
	if err != nil {
		return "", err
	}
	return core.StationID(args[0]), nil
}

// ParseClaim parses [station, console, index, coordinates?].
func (p *Parser) ParseClaim(args []string) (lifecycle.ClaimMessage, error) {
	var msg lifecycle.ClaimMessage
	args, err := requireArgs("claim", args, 3)
	if err != nil {
		return msg, err
	}

	idx, err := parseUintFromFloat(args[2])
	if err != nil || idx > 0xFFFF {
		return msg, fmt.Errorf("claim index %q: %w", args[2], ErrBadArgs)
	}

	msg.Station = core.StationID(args[0])
	msg.Console = core.ConsoleID(args[1])
	msg.Index = core.MissionIndex(idx)
	if len(args) > 3 {
		msg.Coordinates = args[3]
	}

	p.logger.Debug("Parsed claim", "station", msg.Station, "mission", msg.Index)
	return msg, nil
}

// ParseFinish parses [station, success].
func (p *Parser) ParseFinish(args []string) (lifecycle.FinishMessage, error) {
	var msg lifecycle.FinishMessage
	args, err := requireArgs("finish", args, 2)
	if err != nil {
		return msg, err
	}
	success, err := parseBool(args[1])
	if err != nil {
		return msg, fmt.Errorf("finish success flag: %w", errors.Join(err, ErrBadArgs))
	}
	msg.Station = core.StationID(args[0])
	msg.Success = success
	return msg, nil
}

// ParseRefresh parses [station].
func (p *Parser) ParseRefresh(args []string) (lifecycle.RefreshMessage, error) {
	station, err := p.station("refresh", args)
	return lifecycle.RefreshMessage{Station: station}, err
}

// DefaultHistoryLimit is used when a history query names no limit.
const DefaultHistoryLimit = 20

// HistoryQuery asks for a station's recent audit trail.
type HistoryQuery struct {
	Station core.StationID
	Limit   int
}

// ParseHistory parses [station, limit?].
func (p *Parser) ParseHistory(args []string) (HistoryQuery, error) {
	q := HistoryQuery{Limit: DefaultHistoryLimit}
	args, err := requireArgs("history", args, 1)
	if err != nil {
		return q, err
	}
	q.Station = core.StationID(args[0])
	if len(args) > 1 && args[1] != "" {
		n, err := parseUintFromFloat(args[1])
		if err != nil || n == 0 || n > 1000 {
			return q, fmt.Errorf("history limit %q: %w", args[1], ErrBadArgs)
		}
		q.Limit = int(n)
	}
	return q, nil
}

// CooldownUpdate carries new cooldown values from a config reload.
type CooldownUpdate struct {
	Cooldown       time.Duration
	FailedCooldown time.Duration
}

// ParseCooldowns parses [cooldownSeconds, failedCooldownSeconds].
func (p *Parser) ParseCooldowns(args []string) (CooldownUpdate, error) {
	var u CooldownUpdate
	args, err := requireArgs("cooldowns", args, 2)
	if err != nil {
		return u, err
	}
	vals := make([]time.Duration, 2)
	for i := range vals {
		f, err := strconv.ParseFloat(args[i], 64)
		if err != nil || f < 0 {
			return u, fmt.Errorf("cooldown %q: %w", args[i], ErrBadArgs)
		}
		vals[i] = time.Duration(f * float64(time.Second))
	}
	u.Cooldown, u.FailedCooldown = vals[0], vals[1]
	return u, nil
}

// ParseRegenerate parses [station].
func (p *Parser) ParseRegenerate(args []string) (lifecycle.RegenerateMessage, error) {
	station, err := p.station("regenerate", args)
	return lifecycle.RegenerateMessage{Station: station}, err
}

// ParseStationAdded parses [station].
func (p *Parser) ParseStationAdded(args []string) (lifecycle.StationAddedMessage, error) {
	station, err := p.station("station add", args)
	return lifecycle.StationAddedMessage{Station: station}, err
}

// ParseStationRemoved parses [station].
func (p *Parser) ParseStationRemoved(args []string) (lifecycle.StationRemovedMessage, error) {
	station, err := p.station("station remove", args)
	return lifecycle.StationRemovedMessage{Station: station}, err
}

// ParseTransit parses [station, inTransit].
func (p *Parser) ParseTransit(args []string) (lifecycle.TransitChangedMessage, error) {
	var msg lifecycle.TransitChangedMessage
	args, err := requireArgs("transit", args, 2)
	if err != nil {
		return msg, err
	}
	inTransit, err := parseBool(args[1])
	if err != nil {
		return msg, fmt.Errorf("transit flag: %w", errors.Join(err, ErrBadArgs))
	}
	msg.Station = core.StationID(args[0])
	msg.InTransit = inTransit
	return msg, nil
}

// ParseWorldShutdown parses [world].
func (p *Parser) ParseWorldShutdown(args []string) (lifecycle.WorldShutdownMessage, error) {
	args, err := requireArgs("world shutdown", args, 1)
	if err != nil {
		return lifecycle.WorldShutdownMessage{}, err
	}
	return lifecycle.WorldShutdownMessage{World: core.WorldID(args[0])}, nil
}

// ParseObjectiveCompleted parses [world].
func (p *Parser) ParseObjectiveCompleted(args []string) (lifecycle.ObjectiveCompletedMessage, error) {
	args, err := requireArgs("world complete", args, 1)
	if err != nil {
		return lifecycle.ObjectiveCompletedMessage{}, err
	}
	return lifecycle.ObjectiveCompletedMessage{World: core.WorldID(args[0])}, nil
}

// ParseConsole parses [console, station, parent?, x?, y?]. A console without
// a parent has no placement.
func (p *Parser) ParseConsole(args []string) (core.Console, error) {
	var c core.Console
	args, err := requireArgs("console add", args, 2)
	if err != nil {
		return c, err
	}
	c.ID = core.ConsoleID(args[0])
	c.Station = core.StationID(args[1])

	if len(args) < 3 || args[2] == "" {
		return c, nil
	}
	at := &core.Placement{Parent: args[2]}
	if len(args) >= 5 {
		if at.X, err = strconv.ParseFloat(args[3], 64); err != nil {
			return c, fmt.Errorf("console x %q: %w", args[3], ErrBadArgs)
		}
		if at.Y, err = strconv.ParseFloat(args[4], 64); err != nil {
			return c, fmt.Errorf("console y %q: %w", args[4], ErrBadArgs)
		}
	}
	c.Placement = at
	return c, nil
}
