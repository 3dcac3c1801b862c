package engine

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// progressTracker turns ffmpeg's stderr banner and -progress key/value
// stream into fractional progress callbacks.
type progressTracker struct {
	mu       sync.Mutex
	duration time.Duration
	last     float64
	report   ProgressFunc
}

func newProgressTracker(report ProgressFunc) *progressTracker {
	return &progressTracker{report: report, last: -1}
}

// observeStderr picks up the input duration from the ffmpeg banner.
func (p *progressTracker) observeStderr(line string) {
	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	d, ok := parseClock(m[1], m[2], m[3])
	if !ok || d <= 0 {
		return
	}

	p.mu.Lock()
	if p.duration == 0 {
		p.duration = d
	}
	p.mu.Unlock()
}

// observeProgress handles one key=value line of the -progress stream.
func (p *progressTracker) observeProgress(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports out_time_ms in microseconds as well.
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.mu.Lock()
		total := p.duration
		p.mu.Unlock()
		if total <= 0 {
			return
		}
		p.emit(float64(time.Duration(us)*time.Microsecond) / float64(total))
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.emit(1)
		}
	}
}

func (p *progressTracker) emit(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	p.mu.Lock()
	if fraction == p.last {
		p.mu.Unlock()
		return
	}
	p.last = fraction
	report := p.report
	p.mu.Unlock()

	if report != nil {
		report(fraction)
	}
}

func parseClock(h, m, s string) (time.Duration, bool) {
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return total + time.Duration(seconds*float64(time.Second)), true
}

// lineWriter splits a byte stream into lines (on \n or \r) and keeps a
// bounded tail of the raw output for command logs. Both the tail and the
// partial line are capped at limit bytes.
type lineWriter struct {
	mu      sync.Mutex
	onLine  func(string)
	pending []byte
	tail    []byte
	limit   int
}

func newLineWriter(limit int, onLine func(string)) *lineWriter {
	return &lineWriter{onLine: onLine, limit: limit}
}

// Write implements io.Writer.
func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tail = append(w.tail, b...)
	if w.limit > 0 && len(w.tail) > w.limit {
		w.tail = append([]byte(nil), w.tail[len(w.tail)-w.limit:]...)
	}

	w.pending = append(w.pending, b...)
	for {
		i := bytes.IndexAny(w.pending, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.pending[:i])
		w.pending = w.pending[i+1:]
		if line != "" && w.onLine != nil {
			w.onLine(line)
		}
	}
	// A line longer than limit keeps only its end.
	if w.limit > 0 && len(w.pending) > w.limit {
		w.pending = append([]byte(nil), w.pending[len(w.pending)-w.limit:]...)
	}
	return len(b), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 && w.onLine != nil {
		w.onLine(string(w.pending))
	}
	w.pending = nil
}

// String returns the captured tail.
func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.tail)
}
