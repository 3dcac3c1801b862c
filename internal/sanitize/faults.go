package sanitize

import (
	"errors"
	"fmt"

	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
	"media-sanitizer/internal/staging"
)

// FaultKind is the closed set of failure classes surfaced to callers.
type FaultKind string

const (
	FaultLoad      FaultKind = "load"
	FaultNotLoaded FaultKind = "not_loaded"
	FaultIO        FaultKind = "io"
	FaultExecution FaultKind = "execution"
	FaultBusy      FaultKind = "busy"
	FaultUnknown   FaultKind = "unknown"
)

// Sentinels for errors.Is. They match any Fault of the same kind.
var (
	ErrLoad      = &Fault{Kind: FaultLoad}
	ErrNotLoaded = &Fault{Kind: FaultNotLoaded}
	ErrIO        = &Fault{Kind: FaultIO}
	ErrExecution = &Fault{Kind: FaultExecution}
	ErrBusy      = &Fault{Kind: FaultBusy}
)

// Fault is a stage-aware failure with optional command context.
type Fault struct {
	Kind       FaultKind         `json:"kind"`
	Stage      domain.JobStatus  `json:"stage,omitempty"`
	Message    string            `json:"message"`
	CommandLog domain.CommandLog `json:"commandLog"`
	Err        error             `json:"-"`
}

// Error formats faults for logs and UI.
func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	msg := f.Message
	if msg == "" {
		msg = string(f.Kind)
	}
	if f.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (cmd=%s exit=%d)", msg, f.CommandLog.Command, f.CommandLog.ExitCode)
	}
	if f.Stage != "" {
		return fmt.Sprintf("%s: %s", f.Stage, msg)
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Is matches a kind-only sentinel of the same kind.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || f == nil || t == nil {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == f.Kind
}

// KindOf classifies err; errors outside the taxonomy are FaultUnknown.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultUnknown
}

// classify maps a component error raised at stage onto the taxonomy.
func classify(stage domain.JobStatus, err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	var execErr *engine.ExecError
	switch {
	case errors.As(err, &execErr):
		return &Fault{Kind: FaultExecution, Stage: stage, Message: "engine execution failed", CommandLog: execErr.Log, Err: err}
	case errors.Is(err, staging.ErrNotFound):
		return &Fault{Kind: FaultIO, Stage: stage, Message: "engine produced no output", Err: err}
	case errors.Is(err, staging.ErrIO):
		return &Fault{Kind: FaultIO, Stage: stage, Message: "staging i/o failed", Err: err}
	case errors.Is(err, engine.ErrNotLoaded):
		return &Fault{Kind: FaultNotLoaded, Stage: stage, Message: "engine not loaded", Err: err}
	default:
		return &Fault{Kind: FaultUnknown, Stage: stage, Message: err.Error(), Err: err}
	}
}
