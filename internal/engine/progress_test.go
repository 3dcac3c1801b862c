package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestProgressTrackerIgnoresPositionWithoutDuration checks still images and unknown lengths.
func TestProgressTrackerIgnoresPositionWithoutDuration(t *testing.T) {
	var got []float64
	p := newProgressTracker(func(f float64) { got = append(got, f) })

	p.observeProgress("out_time_us=1000000")
	p.observeProgress("progress=end")

	assert.Equal(t, []float64{1}, got)
}

// TestProgressTrackerClampsAndDeduplicates checks clamping to [0,1].
func TestProgressTrackerClampsAndDeduplicates(t *testing.T) {
	var got []float64
	p := newProgressTracker(func(f float64) { got = append(got, f) })

	p.observeStderr("  Duration: 00:00:02.00, start: 0.000000, bitrate: 1 kb/s")
	p.observeProgress("out_time_us=4000000")
	p.observeProgress("out_time_us=5000000")
	p.observeProgress("out_time_us=N/A")
	p.observeProgress("progress=end")

	assert.Equal(t, []float64{1}, got)
}

// TestParseClock checks banner duration parsing.
func TestParseClock(t *testing.T) {
	d, ok := parseClock("01", "02", "03.50")
	assert.True(t, ok)
	assert.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, d)
}

// TestLineWriterSplitsCarriageReturns checks line splitting and tail capture.
func TestLineWriterSplitsCarriageReturns(t *testing.T) {
	var lines []string
	w := newLineWriter(8, func(s string) { lines = append(lines, s) })

	_, _ = w.Write([]byte("a=1\rb=2\nc="))
	_, _ = w.Write([]byte("3"))
	w.Flush()

	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, lines)
	assert.Equal(t, "=2\nc=3", w.String()[len(w.String())-6:])
	assert.LessOrEqual(t, len(w.String()), 8)
}

// TestLineWriterBoundsUnterminatedLine checks that output without line
// breaks cannot grow the buffer past its limit.
func TestLineWriterBoundsUnterminatedLine(t *testing.T) {
	var lines []string
	w := newLineWriter(8, func(s string) { lines = append(lines, s) })

	for i := 0; i < 3; i++ {
		_, _ = w.Write([]byte(strings.Repeat("x", 8) + "y"))
		assert.LessOrEqual(t, len(w.pending), 8)
	}
	_, _ = w.Write([]byte("\nok\n"))

	assert.Equal(t, []string{"xxxxxxxy", "ok"}, lines)
	assert.Empty(t, w.pending)
	assert.LessOrEqual(t, len(w.String()), 8)
}
