package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false, Endpoint: "localhost:4318"})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSinkFails(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "expedition-scheduler"})
	assert.ErrorContains(t, err, "no log writer or endpoint")
}

func TestNew_FileExporterCarriesSession(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "expedition-scheduler",
		Version:      "1.2.3",
		InstanceID:   "session-42",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())

	var rec log.Record
	rec.SetBody(log.StringValue("expedition finished"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "expedition finished")
	assert.Contains(t, buf.String(), "session-42")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_OTLPEndpoint(t *testing.T) {
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "expedition-scheduler",
		BatchTimeout: time.Second,
		Endpoint:     "127.0.0.1:4318",
		Insecure:     true,
	})
	require.NoError(t, err)
	assert.NotNil(t, p.LoggerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}
