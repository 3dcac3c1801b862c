package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"media-sanitizer/internal/domain"
)

const (
	defaultFFmpegPath = "ffmpeg"
	logTailBytes      = 8 << 10
)

// execPrefix is prepended to every builder-produced argument sequence.
var execPrefix = []string{"-hide_banner", "-nostdin", "-nostats", "-progress", "pipe:1"}

// processSpec describes one external process invocation.
type processSpec struct {
	Dir    string
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

// processRunner abstracts process execution for testability.
type processRunner interface {
	Run(ctx context.Context, spec processSpec) (exitCode int, err error)
}

// execRunner executes processes via os/exec.
type execRunner struct{}

// Run executes one process, streaming output to the given writers.
func (r *execRunner) Run(ctx context.Context, spec processSpec) (int, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), err
		}
		return -1, err
	}
	return 0, nil
}

// FFmpeg runs the ffmpeg binary against a private temporary workspace.
type FFmpeg struct {
	runner    processRunner
	lookPath  func(string) (string, error)
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	install   func(ctx context.Context) error
	logger    zerolog.Logger

	mu      sync.RWMutex
	binary  string
	version string
	workDir string
}

// NewFFmpeg constructs the production engine with OS dependencies.
func NewFFmpeg(logger zerolog.Logger) *FFmpeg {
	f := &FFmpeg{
		runner:    &execRunner{},
		lookPath:  exec.LookPath,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
	f.install = func(ctx context.Context) error {
		return InstallFFmpeg(ctx, f.logger)
	}
	return f
}

// Load resolves the binary, probes its version and creates the workspace.
// Calling Load on a loaded engine is a no-op.
func (f *FFmpeg) Load(ctx context.Context, cfg Config) error {
	if f.loaded() {
		return nil
	}

	name := strings.TrimSpace(cfg.FFmpegPath)
	if name == "" {
		name = defaultFFmpegPath
	}

	binary, err := f.lookPath(name)
	if err != nil {
		if !cfg.AutoInstall {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		f.logger.Info().Str("binary", name).Msg("ffmpeg not found, provisioning")
		if installErr := f.install(ctx); installErr != nil {
			return fmt.Errorf("provision ffmpeg: %w", installErr)
		}
		if binary, err = f.lookPath(name); err != nil {
			return fmt.Errorf("resolve %s after install: %w", name, err)
		}
	}

	out := newLineWriter(logTailBytes, nil)
	if _, err := f.runner.Run(ctx, processSpec{
		Name:   binary,
		Args:   []string{"-hide_banner", "-version"},
		Stdout: out,
		Stderr: io.Discard,
	}); err != nil {
		return fmt.Errorf("probe %s: %w", binary, err)
	}
	version := firstLine(out.String())

	workDir, err := f.mkdirTemp(cfg.StagingRoot, "media-sanitizer-*")
	if err != nil {
		return fmt.Errorf("create staging workspace: %w", err)
	}

	f.mu.Lock()
	f.binary = binary
	f.version = version
	f.workDir = workDir
	f.mu.Unlock()

	f.logger.Info().Str("binary", binary).Str("version", version).Str("workspace", workDir).Msg("engine loaded")
	return nil
}

// Version returns the probed version line, empty before load.
func (f *FFmpeg) Version() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// Exec runs ffmpeg with args inside the workspace and reports progress.
// Every progress callback happens before Exec returns.
func (f *FFmpeg) Exec(ctx context.Context, args []string, onProgress ProgressFunc) (domain.CommandLog, error) {
	f.mu.RLock()
	binary, workDir := f.binary, f.workDir
	f.mu.RUnlock()
	if workDir == "" {
		return domain.CommandLog{}, ErrNotLoaded
	}

	tracker := newProgressTracker(onProgress)
	stdout := newLineWriter(logTailBytes, tracker.observeProgress)
	stderr := newLineWriter(logTailBytes, tracker.observeStderr)

	fullArgs := append(append([]string{}, execPrefix...), args...)
	exitCode, runErr := f.runner.Run(ctx, processSpec{
		Dir:    workDir,
		Name:   binary,
		Args:   fullArgs,
		Stdout: stdout,
		Stderr: stderr,
	})
	stdout.Flush()
	stderr.Flush()

	log := domain.CommandLog{
		Command:  binary,
		Args:     fullArgs,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if runErr != nil {
		return log, &ExecError{Log: log, Err: runErr}
	}
	return log, nil
}

// WriteFile stores data under name in the workspace.
func (f *FFmpeg) WriteFile(_ context.Context, name string, data []byte) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadFile returns the blob stored under name. Missing blobs wrap fs.ErrNotExist.
func (f *FFmpeg) ReadFile(_ context.Context, name string) ([]byte, error) {
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// DeleteFile removes the blob stored under name. Deleting a missing blob is
// not an error.
func (f *FFmpeg) DeleteFile(_ context.Context, name string) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the workspace and returns the engine to the unloaded state.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	workDir := f.workDir
	f.workDir = ""
	f.binary = ""
	f.version = ""
	f.mu.Unlock()

	if workDir == "" {
		return nil
	}
	return f.removeAll(workDir)
}

func (f *FFmpeg) loaded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.workDir != ""
}

// resolve maps a bare staging name to its workspace path.
func (f *FFmpeg) resolve(name string) (string, error) {
	f.mu.RLock()
	workDir := f.workDir
	f.mu.RUnlock()
	if workDir == "" {
		return "", ErrNotLoaded
	}
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(workDir, name), nil
}

// ValidName reports whether name is a bare file name usable in the staging area.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// NewFFmpegForTests constructs an engine with injectable dependencies.
func NewFFmpegForTests(
	runner processRunner,
	lookPath func(string) (string, error),
	mkdirTemp func(dir, pattern string) (string, error),
	install func(ctx context.Context) error,
) *FFmpeg {
	return &FFmpeg{
		runner:    runner,
		lookPath:  lookPath,
		mkdirTemp: mkdirTemp,
		removeAll: os.RemoveAll,
		install:   install,
		logger:    zerolog.Nop(),
	}
}
