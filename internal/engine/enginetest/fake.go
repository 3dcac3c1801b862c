// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
)

// ExecFunc overrides the default transform. It may read and write files
// through the fake and report progress.
type ExecFunc func(f *Fake, args []string, onProgress engine.ProgressFunc) error

// Fake is an in-memory engine. The zero value is not usable; call New.
type Fake struct {
	// LoadErr, when set, fails every Load call.
	LoadErr error
	// LoadGate, when set, blocks Load until it is closed or receives.
	LoadGate chan struct{}
	// LoadStarted, when set, receives once per Load call before LoadGate.
	LoadStarted chan struct{}
	// ExecFn replaces the default transform.
	ExecFn ExecFunc
	// Progress is reported by the default transform.
	Progress []float64
	// WriteErr, ReadErr and DeleteErr inject staging failures.
	WriteErr  error
	ReadErr   error
	DeleteErr error

	mu      sync.Mutex
	loaded  bool
	files   map[string][]byte
	calls   map[string]int
	lastArg []string
}

// New returns an unloaded fake.
func New() *Fake {
	return &Fake{
		Progress: []float64{0.25, 0.5, 1},
		files:    map[string][]byte{},
		calls:    map[string]int{},
	}
}

// Load marks the fake loaded unless LoadErr is set.
func (f *Fake) Load(ctx context.Context, _ engine.Config) error {
	f.count("load")
	if f.LoadStarted != nil {
		f.LoadStarted <- struct{}{}
	}
	if f.LoadGate != nil {
		select {
		case <-f.LoadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.mu.Lock()
	f.loaded = true
	f.mu.Unlock()
	return nil
}

// Version returns a fixed version once loaded.
func (f *Fake) Version() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return ""
	}
	return "fake-engine 1.0"
}

// Exec runs ExecFn or the default transform, which copies the input named
// after -i to the last argument with the other arguments appended.
func (f *Fake) Exec(_ context.Context, args []string, onProgress engine.ProgressFunc) (domain.CommandLog, error) {
	f.count("exec")
	f.mu.Lock()
	loaded := f.loaded
	f.lastArg = append([]string(nil), args...)
	f.mu.Unlock()

	log := domain.CommandLog{Command: "fake", Args: append([]string(nil), args...)}
	if !loaded {
		return log, engine.ErrNotLoaded
	}

	var err error
	if f.ExecFn != nil {
		err = f.ExecFn(f, args, onProgress)
	} else {
		err = f.defaultExec(args, onProgress)
	}
	if err != nil {
		log.ExitCode = 1
		log.Stderr = err.Error()
		return log, &engine.ExecError{Log: log, Err: err}
	}
	return log, nil
}

func (f *Fake) defaultExec(args []string, onProgress engine.ProgressFunc) error {
	input := ""
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-i" {
			input = args[i+1]
			break
		}
	}
	if input == "" || len(args) == 0 {
		return fmt.Errorf("no input")
	}

	f.mu.Lock()
	data, ok := f.files[input]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: no such file", input)
	}

	for _, p := range f.Progress {
		if onProgress != nil {
			onProgress(p)
		}
	}

	out := append(append([]byte(nil), data...), []byte("|"+strings.Join(args, " "))...)
	f.Put(args[len(args)-1], out)
	return nil
}

// WriteFile stores a copy of data.
func (f *Fake) WriteFile(_ context.Context, name string, data []byte) error {
	f.count("write")
	if err := f.check(name); err != nil {
		return err
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Put(name, data)
	return nil
}

// ReadFile returns a copy of the named blob.
func (f *Fake) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.count("read")
	if err := f.check(name); err != nil {
		return nil, err
	}
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// DeleteFile removes the named blob. DeleteErr is returned after removal.
func (f *Fake) DeleteFile(_ context.Context, name string) error {
	f.count("delete")
	if err := f.check(name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.files, name)
	f.mu.Unlock()
	return f.DeleteErr
}

// Close unloads the fake and drops every blob.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
	f.files = map[string][]byte{}
	return nil
}

// Put stores a blob directly, bypassing counters and error injection.
func (f *Fake) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = append([]byte(nil), data...)
}

// Files returns the sorted names of stored blobs.
func (f *Fake) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calls returns how often op ("load", "exec", "write", "read", "delete") ran.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastArgs returns the argument sequence of the most recent Exec.
func (f *Fake) LastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastArg...)
}

func (f *Fake) check(name string) error {
	f.mu.Lock()
	loaded := f.loaded
	f.mu.Unlock()
	if !loaded {
		return engine.ErrNotLoaded
	}
	if !engine.ValidName(name) {
		return fmt.Errorf("%w: %q", engine.ErrInvalidName, name)
	}
	return nil
}

func (f *Fake) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

var _ engine.Engine = (*Fake)(nil)
