package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// TestRecordRunCountsByModeAndOutcome checks run counters.
func TestRecordRunCountsByModeAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(sanitizeRuns.WithLabelValues("ci", "ok"))
	RecordRun("ci", "ok", 120*time.Millisecond)
	RecordRun("ci", "execution", 10*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(sanitizeRuns.WithLabelValues("ci", "ok")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(sanitizeRuns.WithLabelValues("ci", "execution")), 1.0)
}

// TestRecordEngineLoad checks load counters.
func TestRecordEngineLoad(t *testing.T) {
	before := testutil.ToFloat64(engineLoads.WithLabelValues("failed"))
	RecordEngineLoad(false)
	assert.Equal(t, before+1, testutil.ToFloat64(engineLoads.WithLabelValues("failed")))
}

// TestRegisterMetricsIsIdempotent checks repeated registration.
func TestRegisterMetricsIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterMetrics()
		RegisterMetrics()
	})
}

// TestParseLevel checks level fallbacks.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

// TestNewLoggerWritesAppField checks logger wiring.
func TestNewLoggerWritesAppField(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "media-sanitizer", "info")
	logger.Info().Msg("hello")
	logger.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "media-sanitizer")
	assert.NotContains(t, out, "hidden")
}
