// Package websocket pushes console snapshots to the UI server over a
// WebSocket connection.
package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stickycheZ101/HardLight/pkg/core"
	"github.com/stickycheZ101/HardLight/pkg/streaming"
)

// ProtocolVersion is sent in the hello message.
const ProtocolVersion = 1

// Config holds WebSocket publisher configuration.
type Config struct {
	URL      string
	Secret   string
	Instance string
}

// Publisher is a console.Sink that streams every snapshot to the UI
// server. Push never blocks; the latest snapshot per station is kept so a
// reconnect can resynchronize the server.
type Publisher struct {
	conn *connection
	cfg  Config
	log  *slog.Logger

	mu     sync.Mutex
	latest map[core.StationID][]byte
	order  []core.StationID

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a new WebSocket publisher.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		conn:   newConnection(logger),
		cfg:    cfg,
		log:    logger,
		latest: make(map[core.StationID][]byte),
	}
	p.conn.replay = p.snapshotMessages
	return p
}

// Init connects to the server and waits for the hello to be acknowledged.
func (p *Publisher) Init() error {
	hello, err := streaming.Marshal(streaming.TypeHello, streaming.HelloPayload{
		Instance: p.cfg.Instance,
		Version:  ProtocolVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}

	if err := p.conn.dial(p.cfg.URL, p.cfg.Secret); err != nil {
		return err
	}

	p.conn.mu.Lock()
	p.conn.cachedHello = hello
	p.conn.mu.Unlock()

	return p.conn.sendAndWait(hello, streaming.TypeHello, ackTimeout)
}

// Close disconnects from the server.
func (p *Publisher) Close() error {
	return p.conn.close()
}

// Push implements console.Sink.
func (p *Publisher) Push(s core.ConsoleSnapshot) {
	data, err := streaming.Marshal(streaming.TypeConsoleState, streaming.ConsoleStatePayload{Snapshot: s})
	if err != nil {
		p.log.Error("Failed to marshal console state", "station", s.Station, "error", err)
		return
	}

	p.mu.Lock()
	if _, ok := p.latest[s.Station]; !ok {
		p.order = append(p.order, s.Station)
	}
	p.latest[s.Station] = data
	p.mu.Unlock()

	if p.conn.send(data) {
		p.sent.Add(1)
	} else {
		p.dropped.Add(1)
	}
}

// Stats returns how many snapshots were queued and dropped.
func (p *Publisher) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}

func (p *Publisher) snapshotMessages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, 0, len(p.order))
	for _, station := range p.order {
		out = append(out, p.latest[station])
	}
	return out
}
