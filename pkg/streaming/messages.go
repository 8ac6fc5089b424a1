// Package streaming defines the wire envelope used to push console state
// to the UI server.
package streaming

import (
	"encoding/json"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello        = "hello"
	TypeConsoleState = "console_state"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload announces the scheduler instance. It is acknowledged by
// the server and replayed after every reconnect.
type HelloPayload struct {
	Instance string `json:"instance"`
	Version  int    `json:"version"`
}

// ConsoleStatePayload carries one station's console snapshot.
type ConsoleStatePayload struct {
	Snapshot core.ConsoleSnapshot `json:"snapshot"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
