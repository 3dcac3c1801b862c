package engine

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner simulates process execution.
type fakeRunner struct {
	run   func(ctx context.Context, spec processSpec) (int, error)
	specs []processSpec
}

// Run records the invocation and delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, spec processSpec) (int, error) {
	f.specs = append(f.specs, spec)
	if f.run == nil {
		return 0, nil
	}
	return f.run(ctx, spec)
}

// versionRunner answers the -version probe and defers everything else.
func versionRunner(next func(ctx context.Context, spec processSpec) (int, error)) *fakeRunner {
	return &fakeRunner{run: func(ctx context.Context, spec processSpec) (int, error) {
		if len(spec.Args) > 0 && spec.Args[len(spec.Args)-1] == "-version" {
			_, _ = io.WriteString(spec.Stdout, "ffmpeg version 7.1 Copyright (c)\nbuilt with gcc\n")
			return 0, nil
		}
		if next == nil {
			return 0, nil
		}
		return next(ctx, spec)
	}}
}

func found(name string) (string, error) { return "/usr/bin/" + name, nil }

func loadedEngine(t *testing.T, runner *fakeRunner) *FFmpeg {
	t.Helper()
	root := t.TempDir()
	f := NewFFmpegForTests(runner, found, os.MkdirTemp, nil)
	require.NoError(t, f.Load(context.Background(), Config{StagingRoot: root}))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// TestFFmpegLoadProbesVersionAndCreatesWorkspace checks the happy load path.
func TestFFmpegLoadProbesVersionAndCreatesWorkspace(t *testing.T) {
	runner := versionRunner(nil)
	f := loadedEngine(t, runner)

	assert.Equal(t, "ffmpeg version 7.1 Copyright (c)", f.Version())
	require.Len(t, runner.specs, 1)
	assert.Equal(t, "/usr/bin/ffmpeg", runner.specs[0].Name)

	info, err := os.Stat(f.workDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestFFmpegLoadMissingBinary checks that a missing binary fails load without install.
func TestFFmpegLoadMissingBinary(t *testing.T) {
	installed := false
	f := NewFFmpegForTests(
		versionRunner(nil),
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirTemp,
		func(context.Context) error { installed = true; return nil },
	)

	err := f.Load(context.Background(), Config{StagingRoot: t.TempDir()})
	require.Error(t, err)
	assert.False(t, installed)
	assert.Empty(t, f.Version())
}

// TestFFmpegLoadAutoInstall checks provisioning when the binary is missing.
func TestFFmpegLoadAutoInstall(t *testing.T) {
	installed := false
	f := NewFFmpegForTests(
		versionRunner(nil),
		func(name string) (string, error) {
			if !installed {
				return "", errors.New("not found")
			}
			return "/opt/bin/" + name, nil
		},
		os.MkdirTemp,
		func(context.Context) error { installed = true; return nil },
	)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Load(context.Background(), Config{StagingRoot: t.TempDir(), AutoInstall: true}))
	assert.True(t, installed)
}

// TestFFmpegLoadWorkspaceFailure checks that a workspace error leaves the engine unloaded.
func TestFFmpegLoadWorkspaceFailure(t *testing.T) {
	f := NewFFmpegForTests(
		versionRunner(nil),
		found,
		func(string, string) (string, error) { return "", errors.New("disk full") },
		nil,
	)

	require.Error(t, f.Load(context.Background(), Config{}))
	assert.ErrorIs(t, f.WriteFile(context.Background(), "input.mp4", []byte("x")), ErrNotLoaded)
}

// TestFFmpegFileOpsBeforeLoad checks the not-loaded guard.
func TestFFmpegFileOpsBeforeLoad(t *testing.T) {
	f := NewFFmpegForTests(versionRunner(nil), found, os.MkdirTemp, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.WriteFile(ctx, "input.jpg", nil), ErrNotLoaded)
	_, err := f.ReadFile(ctx, "input.jpg")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = f.Exec(ctx, []string{"-i", "input.jpg"}, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

// TestFFmpegFileRoundTrip checks write, read and delete within the workspace.
func TestFFmpegFileRoundTrip(t *testing.T) {
	f := loadedEngine(t, versionRunner(nil))
	ctx := context.Background()

	require.NoError(t, f.WriteFile(ctx, "input.png", []byte("pixels")))
	got, err := f.ReadFile(ctx, "input.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), got)

	require.NoError(t, f.DeleteFile(ctx, "input.png"))
	_, err = f.ReadFile(ctx, "input.png")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NoError(t, f.DeleteFile(ctx, "input.png"), "deleting a missing blob is not an error")
}

// TestFFmpegRejectsPathNames checks that names cannot escape the workspace.
func TestFFmpegRejectsPathNames(t *testing.T) {
	f := loadedEngine(t, versionRunner(nil))
	for _, name := range []string{"", ".", "..", "../escape.mp4", "dir/input.mp4", `dir\input.mp4`} {
		assert.ErrorIs(t, f.WriteFile(context.Background(), name, []byte("x")), ErrInvalidName, name)
	}
}

// TestFFmpegExecReportsProgress checks prefix args, working dir and progress parsing.
func TestFFmpegExecReportsProgress(t *testing.T) {
	runner := versionRunner(func(ctx context.Context, spec processSpec) (int, error) {
		_, _ = io.WriteString(spec.Stderr, "Input #0, mov\n  Duration: 00:00:10.00, start: 0.000000\n")
		_, _ = io.WriteString(spec.Stdout, "frame=10\nout_time_us=2500000\nprogress=continue\n")
		_, _ = io.WriteString(spec.Stdout, "out_time_ms=5000000\nprogress=continue\nprogress=end\n")
		return 0, os.WriteFile(filepath.Join(spec.Dir, spec.Args[len(spec.Args)-1]), []byte("out"), 0o600)
	})
	f := loadedEngine(t, runner)

	var fractions []float64
	log, err := f.Exec(context.Background(), []string{"-i", "input.mp4", "-y", "output.mp4"}, func(p float64) {
		fractions = append(fractions, p)
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.25, 0.5, 1}, fractions)
	spec := runner.specs[len(runner.specs)-1]
	assert.Equal(t, f.workDir, spec.Dir)
	assert.Equal(t, append(append([]string{}, execPrefix...), "-i", "input.mp4", "-y", "output.mp4"), spec.Args)
	assert.Equal(t, 0, log.ExitCode)

	data, err := f.ReadFile(context.Background(), "output.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), data)
}

// TestFFmpegExecFailure checks the command log on a non-zero exit.
func TestFFmpegExecFailure(t *testing.T) {
	f := loadedEngine(t, versionRunner(func(ctx context.Context, spec processSpec) (int, error) {
		_, _ = io.WriteString(spec.Stderr, "input.mp4: Invalid data found when processing input\n")
		return 1, errors.New("exit status 1")
	}))

	log, err := f.Exec(context.Background(), []string{"-i", "input.mp4", "-y", "output.mp4"}, nil)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, log.ExitCode)
	assert.Equal(t, 1, execErr.Log.ExitCode)
	assert.Contains(t, log.Stderr, "Invalid data")
}

// TestFFmpegCloseRemovesWorkspace checks teardown.
func TestFFmpegCloseRemovesWorkspace(t *testing.T) {
	f := loadedEngine(t, versionRunner(nil))
	workDir := f.workDir

	require.NoError(t, f.Close())
	_, err := os.Stat(workDir)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, f.WriteFile(context.Background(), "input.mp4", nil), ErrNotLoaded)
}
