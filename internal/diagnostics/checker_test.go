package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-sanitizer/internal/domain"
)

func itemByID(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("item %s not found", id)
	return domain.DiagnosticItem{}
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func() string { return root },
	)

	report := checker.Run(domain.Settings{
		FFmpegPath: "ffmpeg",
		OutputDir:  filepath.Join(root, "output"),
	})

	require.False(t, report.HasFailures, "%+v", report.Items)
	assert.Len(t, report.Items, 3)
	assert.Empty(t, report.Failed())
	assert.Contains(t, itemByID(t, report, ItemStagingRoot).Message, root)
}

// TestCheckerRunMissingToolAndPaths validates failure reporting.
func TestCheckerRunMissingToolAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		os.TempDir,
	)

	report := checker.Run(domain.Settings{FFmpegPath: "", OutputDir: ""})

	require.True(t, report.HasFailures)
	ffmpeg := itemByID(t, report, ItemFFmpeg)
	assert.Equal(t, domain.DiagnosticStatusFail, ffmpeg.Status)
	assert.True(t, ffmpeg.Fixable)
	output := itemByID(t, report, ItemOutputDir)
	assert.Equal(t, domain.DiagnosticStatusFail, output.Status)
	assert.True(t, output.Fixable)
	assert.Len(t, report.Failed(), 2)
}

// TestCheckerCustomBinaryIsNotFixable checks that custom paths are not auto-installed.
func TestCheckerCustomBinaryIsNotFixable(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		os.TempDir,
	)

	item := checker.checkFFmpeg("/opt/custom/ffmpeg-static")
	assert.Equal(t, domain.DiagnosticStatusFail, item.Status)
	assert.False(t, item.Fixable)
}

// TestCheckerUnwritableDirectory checks createTemp failures.
func TestCheckerUnwritableDirectory(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, errors.New("read-only") },
		os.Remove,
		os.TempDir,
	)

	item := checker.checkWritableDir(ItemOutputDir, "Output directory", "/ro")
	assert.Equal(t, domain.DiagnosticStatusFail, item.Status)
	assert.Contains(t, item.Message, "not writable")
}
