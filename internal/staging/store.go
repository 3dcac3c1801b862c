// Package staging manages the named blobs passed into and out of the engine
// for one operation.
//
// Names are fixed per extension (input<ext>, output<ext>). That is only safe
// while a single operation is in flight; callers hold the orchestrator permit
// for the whole write/transform/read/delete sequence.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrIO marks a failed staging write or read.
	ErrIO = errors.New("staging i/o failed")
	// ErrNotFound marks a read of a blob that does not exist.
	ErrNotFound = errors.New("staged blob not found")
)

// FileSystem is the engine's staging area.
type FileSystem interface {
	WriteFile(ctx context.Context, name string, data []byte) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error
}

// Error describes one failed staging operation.
type Error struct {
	Op   string
	Name string
	Kind error
	Err  error
}

// Error formats the operation, name and cause.
func (e *Error) Error() string {
	return fmt.Sprintf("staging %s %s: %v", e.Op, e.Name, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Store tracks which blobs it has written so cleanup can be verified.
type Store struct {
	fs     FileSystem
	logger zerolog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

// NewStore wraps fs.
func NewStore(fsys FileSystem, logger zerolog.Logger) *Store {
	return &Store{
		fs:     fsys,
		logger: logger.With().Str("component", "staging").Logger(),
		live:   map[string]struct{}{},
	}
}

// InputName is the staging name of an operation's input.
func InputName(ext string) string {
	return "input" + ext
}

// OutputName is the staging name of an operation's output.
func OutputName(ext string) string {
	return "output" + ext
}

// Write stores data under name.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	if err := s.fs.WriteFile(ctx, name, data); err != nil {
		return &Error{Op: "write", Name: name, Kind: ErrIO, Err: err}
	}
	s.track(name)
	return nil
}

// Read returns the blob stored under name. A missing blob yields ErrNotFound,
// any other failure ErrIO.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.fs.ReadFile(ctx, name)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Op: "read", Name: name, Kind: ErrNotFound, Err: err}
	}
	return nil, &Error{Op: "read", Name: name, Kind: ErrIO, Err: err}
}

// Delete removes name. Failures are logged and never returned.
func (s *Store) Delete(ctx context.Context, name string) {
	s.mu.Lock()
	delete(s.live, name)
	s.mu.Unlock()

	if err := s.fs.DeleteFile(ctx, name); err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("staged blob cleanup failed")
	}
}

// Live returns the sorted names written and not yet deleted.
func (s *Store) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.live))
	for name := range s.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) track(name string) {
	s.mu.Lock()
	s.live[name] = struct{}{}
	s.mu.Unlock()
}
