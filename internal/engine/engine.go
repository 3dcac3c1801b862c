// Package engine wraps the external transcoding engine. The engine owns a
// private staging area where named blobs are written before a run and read
// back after it.
package engine

import (
	"context"
	"errors"
	"fmt"

	"media-sanitizer/internal/domain"
)

// ErrNotLoaded is returned by every operation attempted before Load succeeds.
var ErrNotLoaded = errors.New("engine not loaded")

// ErrInvalidName is returned for staging names that are not bare file names.
var ErrInvalidName = errors.New("invalid staging name")

// Config controls how Load resolves and prepares the engine.
type Config struct {
	FFmpegPath  string
	StagingRoot string
	AutoInstall bool
}

// ProgressFunc receives fractional progress in [0,1].
type ProgressFunc func(fraction float64)

// Engine is the opaque transcoding capability: it accepts a named input blob
// and an argument sequence, produces a named output blob, reports progress,
// and may fail.
type Engine interface {
	Load(ctx context.Context, cfg Config) error
	Version() string
	Exec(ctx context.Context, args []string, onProgress ProgressFunc) (domain.CommandLog, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error
	Close() error
}

// ExecError reports a failed engine invocation with its command log.
type ExecError struct {
	Log domain.CommandLog
	Err error
}

// Error formats the failing command and exit code.
func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("engine execution failed (cmd=%s exit=%d): %s", e.Log.Command, e.Log.ExitCode, errString(e.Err))
}

// Unwrap exposes the underlying process error.
func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
