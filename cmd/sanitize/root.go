package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"media-sanitizer/internal/config"
	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
	"media-sanitizer/internal/jobs"
	"media-sanitizer/internal/lifecycle"
	"media-sanitizer/internal/observability"
	"media-sanitizer/internal/sanitize"
)

type deps struct {
	newEngine func(logger zerolog.Logger) engine.Engine
	newLogger func(level string) zerolog.Logger
}

func defaultDeps() deps {
	return deps{
		newEngine: func(logger zerolog.Logger) engine.Engine { return engine.NewFFmpeg(logger) },
		newLogger: func(level string) zerolog.Logger { return observability.InitLogger("media-sanitizer", level) },
	}
}

type flags struct {
	mode         string
	format       string
	keepMetadata bool
	out          string
	configPath   string
	ffmpeg       string
	logLevel     string
	timeout      time.Duration
}

func newRootCmd(d deps) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "sanitize [flags] <file>",
		Short: "Strip metadata from a media file with ffmpeg",
		Long: `sanitize copies a media file through ffmpeg with one of four presets:
sanitize (strip metadata), ci (strip metadata, bit-exact encoding),
pii (same as ci) and grain (fixed noise filter, metadata stripped unless --keep-metadata).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, d, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.mode, "mode", "m", "", "Preset: sanitize, ci, pii or grain (defaults to the configured mode)")
	fl.StringVarP(&f.format, "format", "f", "", "Output container extension, e.g. mp4 or webm")
	fl.BoolVar(&f.keepMetadata, "keep-metadata", false, "Keep metadata (grain mode only)")
	fl.StringVarP(&f.out, "out", "o", "", "Output file or directory (defaults to the input's directory)")
	fl.StringVar(&f.configPath, "config", "", "Settings file (defaults to ~/.media-sanitizer/settings.toml)")
	fl.StringVar(&f.ffmpeg, "ffmpeg", "", "ffmpeg binary to use")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fl.DurationVarP(&f.timeout, "timeout", "t", 10*time.Minute, "Timeout for load and sanitization; 0 disables")
	return cmd
}

func run(cmd *cobra.Command, d deps, f flags, inputPath string) error {
	settings, err := loadSettings(f.configPath)
	if err != nil {
		return err
	}
	if f.ffmpeg != "" {
		settings.FFmpegPath = f.ffmpeg
	}
	if f.logLevel != "" {
		settings.LogLevel = f.logLevel
	}

	modeName := f.mode
	if modeName == "" {
		modeName = string(settings.DefaultMode)
	}
	mode, err := sanitize.ParseMode(modeName)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	logger := d.newLogger(settings.LogLevel)
	ctrl := lifecycle.NewController(d.newEngine(logger), engine.Config{
		FFmpegPath:  settings.FFmpegPath,
		StagingRoot: settings.StagingRoot,
		AutoInstall: settings.AutoInstall,
	}, logger)
	service := sanitize.NewService(ctrl, nil, logger)
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warn().Err(err).Msg("close engine")
		}
	}()

	ctx := cmd.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err := service.Load(ctx); err != nil {
		return fmt.Errorf("load engine: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	service.Events().Subscribe(progressPrinter(stderr))

	file := domain.SourceFile{Name: filepath.Base(inputPath), Data: data}
	result, err := service.RunMode(ctx, mode, file, sanitize.Overrides{
		OutputFormat: f.format,
		KeepMetadata: f.keepMetadata,
	})
	fmt.Fprintln(stderr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("sanitization timed out after %s", f.timeout)
		}
		var fault *sanitize.Fault
		if errors.As(err, &fault) && fault.CommandLog.Stderr != "" {
			logger.Debug().Str("stderr", fault.CommandLog.Stderr).Msg("engine output")
		}
		return err
	}

	target, err := outputPath(f.out, inputPath, result.SuggestedName)
	if err != nil {
		return err
	}
	if err := os.WriteFile(target, result.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logger.Info().Str("path", target).Int("bytes", len(result.Data)).Str("mime", result.MimeType).Msg("sanitized file written")
	fmt.Fprintln(cmd.OutOrStdout(), target)
	return nil
}

func loadSettings(path string) (domain.Settings, error) {
	if strings.TrimSpace(path) == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return domain.Settings{}, fmt.Errorf("resolve user home: %w", err)
		}
		path = config.DefaultPath(homeDir)
	}

	settings, err := config.NewTOMLStore(path).Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// outputPath resolves --out. An existing directory receives the suggested
// name; any other value is used as the file path. Without --out the result
// lands next to the input.
func outputPath(out, inputPath, suggested string) (string, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return filepath.Join(filepath.Dir(inputPath), suggested), nil
	}

	info, err := os.Stat(out)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(out, suggested), nil
	case err == nil || errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return out, nil
	default:
		return "", fmt.Errorf("resolve output path: %w", err)
	}
}

func progressPrinter(w io.Writer) func(jobs.Event) {
	return func(event jobs.Event) {
		if event.Type == jobs.EventTypeProgress {
			fmt.Fprintf(w, "\rprogress %3d%%", event.Progress)
		}
	}
}
