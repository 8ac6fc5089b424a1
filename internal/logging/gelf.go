package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFSink ships JSON log records to a Graylog input.
type GELFSink struct {
	writer  *gelf.Writer
	handler slog.Handler
}

// NewGELFSink dials the Graylog UDP input at address.
func NewGELFSink(address, level string) (*GELFSink, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = InstrumentationName
	return &GELFSink{
		writer:  w,
		handler: slog.NewJSONHandler(w, handlerOptions(level)),
	}, nil
}

// Handler returns the slog handler writing to Graylog.
func (s *GELFSink) Handler() slog.Handler {
	return s.handler
}

// Close closes the UDP connection.
func (s *GELFSink) Close() error {
	return s.writer.Close()
}
