package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LogOptions{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("name", "web").Msg("started")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"name":"web"`)
	assert.Contains(t, out, `"component":"hvctl"`)
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(LogOptions{Level: "loud"})
	require.Error(t, err)

	_, err = NewLogger(LogOptions{Format: "xml"})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics()
	m.ObserveOperation("domain", "start", "success", 20*time.Millisecond)
	m.ObserveOperation("domain", "start", "success", 10*time.Millisecond)
	m.ObserveOperation("domain", "start", "failure", time.Millisecond)
	m.ObserveBatch("start", 3)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "hvctl_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"success": 2, "failure": 1}, counts)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("domain", "start", "success", time.Second)
	m.ObserveBatch("start", 1)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveOperation("storage pool", "build", "success", time.Second)

	path := filepath.Join(t.TempDir(), "hvctl.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `hvctl_operations_total{kind="storage pool",operation="build",outcome="success"} 1`)
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := SetupTracing("none", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = SetupTracing("jaeger", nil)
	require.Error(t, err)

	var buf bytes.Buffer
	shutdown, err = SetupTracing("stdout", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "unit")
	RecordError(span, assert.AnError)
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "unit"`)
}
