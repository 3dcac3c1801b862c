package config

import (
	"os"
	"path/filepath"

	"media-sanitizer/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		FFmpegPath:  "ffmpeg",
		StagingRoot: "",
		OutputDir:   filepath.Join(homeDir, "Documents", "Sanitized"),
		AutoInstall: false,
		LogLevel:    "info",
		DefaultMode: domain.ModeSanitize,
	}
}

// DefaultPath is where the desktop app and CLI look for settings.
func DefaultPath(homeDir string) string {
	return filepath.Join(homeDir, ".media-sanitizer", "settings.toml")
}
