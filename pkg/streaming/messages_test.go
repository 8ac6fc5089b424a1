package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

func TestMarshal_ConsoleState(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 13, 0, 0, time.UTC)
	data, err := Marshal(TypeConsoleState, ConsoleStatePayload{Snapshot: core.ConsoleSnapshot{
		Station:   "station-1",
		NextOffer: at,
		Cooldown:  true,
		Missions:  []core.MissionParams{{Index: 0, Difficulty: "NFModerate"}},
	}})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeConsoleState, env.Type)

	var p ConsoleStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, core.StationID("station-1"), p.Snapshot.Station)
	assert.True(t, p.Snapshot.Cooldown)
	assert.True(t, at.Equal(p.Snapshot.NextOffer))
	require.Len(t, p.Snapshot.Missions, 1)
}

func TestMarshal_UnsupportedPayload(t *testing.T) {
	_, err := Marshal(TypeHello, make(chan int))
	assert.Error(t, err)
}
