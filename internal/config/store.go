package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"media-sanitizer/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// TOMLStore persists settings in a single TOML file on disk.
type TOMLStore struct {
	path string
}

// NewTOMLStore creates a TOML-backed settings store.
func NewTOMLStore(path string) *TOMLStore {
	return &TOMLStore{path: path}
}

// Path returns the backing file.
func (s *TOMLStore) Path() string {
	return s.path
}

// Load reads settings from disk. A missing file yields defaults, and keys
// absent from the file keep their default values.
func (s *TOMLStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()

	var raw domain.Settings
	meta, err := toml.DecodeFile(s.path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return domain.Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	if meta.IsDefined("ffmpeg_path") {
		cfg.FFmpegPath = raw.FFmpegPath
	}
	if meta.IsDefined("staging_root") {
		cfg.StagingRoot = raw.StagingRoot
	}
	if meta.IsDefined("output_dir") {
		cfg.OutputDir = raw.OutputDir
	}
	if meta.IsDefined("auto_install") {
		cfg.AutoInstall = raw.AutoInstall
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}
	if meta.IsDefined("default_mode") {
		cfg.DefaultMode = raw.DefaultMode
	}

	return cfg, nil
}

// Save writes settings as TOML and creates parent directories.
func (s *TOMLStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}

	return os.WriteFile(s.path, buf.Bytes(), 0o644)
}
