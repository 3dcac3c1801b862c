package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"media-sanitizer/internal/config"
	"media-sanitizer/internal/diagnostics"
	"media-sanitizer/internal/domain"
)

const installTimeout = 45 * time.Minute

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.ItemFFmpeg:
		ctx, cancel := context.WithTimeout(context.Background(), installTimeout)
		fixErr = a.installFF(ctx)
		cancel()
	case diagnostics.ItemStagingRoot:
		fixErr = fixStagingRoot(settings)
	case diagnostics.ItemOutputDir:
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.logger.Warn().Err(fixErr).Str("item", id).Msg("diagnostic fix failed")
		return report, fixErr
	}
	return report, nil
}

// fixStagingRoot creates a configured staging root. An empty root means the
// system temp directory, which is left alone.
func fixStagingRoot(settings domain.Settings) error {
	root := strings.TrimSpace(settings.StagingRoot)
	if root == "" {
		return nil
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return fmt.Errorf("create staging directory %s: %w", root, err)
	}
	return nil
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}
