package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"media-sanitizer/internal/config"
	"media-sanitizer/internal/diagnostics"
	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
	"media-sanitizer/internal/jobs"
	"media-sanitizer/internal/lifecycle"
	"media-sanitizer/internal/observability"
	"media-sanitizer/internal/sanitize"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const appName = "media-sanitizer"

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.jpg;*.jpeg;*.png;*.webp;*.gif;*.heic;*.mp4;*.mov;*.mkv;*.avi;*.webm;*.mp3;*.wav;*.m4a;*.flac;*.ogg",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the sanitization service and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Service     *sanitize.Service
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	events      *jobs.EventBus
	logger      zerolog.Logger
	installFF   func(ctx context.Context) error

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := engine.EnsureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewTOMLStore(config.DefaultPath(homeDir))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger := observability.InitLogger(appName, settings.LogLevel)
	logger.Info().Str("settings", store.Path()).Str("mode", string(settings.DefaultMode)).Msg("settings loaded")
	observability.RegisterMetrics()

	ctrl := lifecycle.NewController(engine.NewFFmpeg(logger), engineConfig(settings), logger)
	events := jobs.NewEventBus(1000)
	service := sanitize.NewService(ctrl, events, logger)

	app := newApp(store, settings, service, events, diagnostics.NewChecker(), logger)
	app.assets = assets
	return app, nil
}

// newApp assembles an App from prepared parts and subscribes the runtime
// event bridge.
func newApp(
	store config.Store,
	settings domain.Settings,
	service *sanitize.Service,
	events *jobs.EventBus,
	checker *diagnostics.Checker,
	logger zerolog.Logger,
) *App {
	a := &App{
		Settings: settings,
		Store:    store,
		Service:  service,
		checker:  checker,
		events:   events,
		logger:   logger.With().Str("component", "app").Logger(),
	}
	a.installFF = func(ctx context.Context) error {
		return engine.InstallFFmpeg(ctx, a.logger)
	}
	if checker != nil {
		a.Diagnostics = checker.Run(settings)
	}
	events.Subscribe(a.emit)
	return a
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	return wails.Run(&options.App{
		Title:  "Media Sanitizer",
		Width:  1180,
		Height: 780,
		AssetServer: &assetserver.Options{
			Assets:  a.assets,
			Handler: a.assetHandler(),
		},
		OnStartup:  a.Startup,
		OnShutdown: a.Shutdown,
		Bind:       []interface{}{a},
	})
}

// assetHandler serves /metrics and, without embedded assets, the frontend
// directory from disk.
func (a *App) assetHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if a.assets == nil {
		mux.Handle("/", http.FileServer(http.Dir("./frontend")))
	} else {
		mux.HandleFunc("/", http.NotFound)
	}
	return mux
}

// Startup stores Wails runtime context for push events and starts loading
// the engine in the background.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	go func() {
		if err := a.Service.Load(context.Background()); err != nil {
			a.logger.Warn().Err(err).Msg("engine not available at startup")
		}
	}()
}

// Shutdown waits for in-flight work and releases the engine workspace.
func (a *App) Shutdown(context.Context) {
	if err := a.Service.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close engine")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = nil
}

// Load initializes the engine. Concurrent calls share one load.
func (a *App) Load() error {
	return a.Service.Load(context.Background())
}

// Status returns the caller-facing processing status.
func (a *App) Status() domain.ProcessingStatus {
	return a.Service.Status()
}

// EngineStatus returns the engine lifecycle snapshot.
func (a *App) EngineStatus() domain.EngineStatus {
	return a.Service.EngineStatus()
}

// ListModes returns the sanitization presets for the mode selector.
func (a *App) ListModes() []domain.ModeOption {
	return sanitize.Modes()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// Engine path and staging root changes apply on the next launch once the
// engine is loaded.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized, err := normalizeSettings(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for sanitized files.
func (a *App) PickOutputDirectory() (string, error) {
	return a.pickDirectory("Select output directory")
}

// PickStagingDirectory opens a native directory picker for the engine workspace root.
func (a *App) PickStagingDirectory() (string, error) {
	return a.pickDirectory("Select staging directory")
}

func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartSanitization reads inputPath, starts the selected mode and returns
// the job. An empty mode uses the configured default. The sanitized file is
// written to the output directory before the job reports completion, so a
// write failure fails the job.
func (a *App) StartSanitization(inputPath, mode string, overrides sanitize.Overrides) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	if strings.TrimSpace(mode) == "" {
		mode = string(settings.DefaultMode)
	}
	selected, err := sanitize.ParseMode(mode)
	if err != nil {
		return domain.Job{}, err
	}

	if a.Service.Busy() {
		return domain.Job{}, &sanitize.Fault{Kind: sanitize.FaultBusy, Message: "another sanitization is in progress"}
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return domain.Job{}, fmt.Errorf("read input: %w", err)
	}

	if err := a.Service.Load(context.Background()); err != nil {
		return domain.Job{}, err
	}

	file := domain.SourceFile{Name: filepath.Base(inputPath), Data: data}
	outputDir := settings.OutputDir
	deliver := func(_ context.Context, result domain.Result) (string, error) {
		return writeOutput(outputDir, result)
	}
	job, done, err := a.Service.StartMode(context.Background(), selected, file, overrides, deliver)
	if err != nil {
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	go a.collectResult(job, done)
	return job, nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Service.CurrentJob()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// collectResult drains the outcome of one job. Status and events are
// already final when it arrives.
func (a *App) collectResult(job domain.Job, done <-chan sanitize.Outcome) {
	o := <-done
	if o.Err != nil {
		return
	}
	a.logger.Info().Str("job", job.ID).Str("path", o.Result.OutputPath).Msg("sanitized output written")
}

// emit forwards bus events to the frontend while the runtime is up.
func (a *App) emit(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", event)
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// engineConfig maps persisted settings to the engine load configuration.
func engineConfig(settings domain.Settings) engine.Config {
	return engine.Config{
		FFmpegPath:  settings.FFmpegPath,
		StagingRoot: settings.StagingRoot,
		AutoInstall: settings.AutoInstall,
	}
}

// normalizeSettings trims user inputs and validates the default mode.
func normalizeSettings(settings domain.Settings) (domain.Settings, error) {
	defaults := config.DefaultSettings()

	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = defaults.FFmpegPath
	}
	settings.StagingRoot = strings.TrimSpace(settings.StagingRoot)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}

	if strings.TrimSpace(string(settings.DefaultMode)) == "" {
		settings.DefaultMode = defaults.DefaultMode
	}
	mode, err := sanitize.ParseMode(strings.TrimSpace(string(settings.DefaultMode)))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("default mode: %w", err)
	}
	settings.DefaultMode = mode
	return settings, nil
}

// writeOutput stores result in dir under its suggested name, adding a
// numeric suffix when the name is taken.
func writeOutput(dir string, result domain.Result) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("output directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	ext := filepath.Ext(result.SuggestedName)
	stem := strings.TrimSuffix(result.SuggestedName, ext)
	for i := 0; ; i++ {
		name := result.SuggestedName
		if i > 0 {
			name = stem + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create output file: %w", err)
		}

		_, writeErr := file.Write(result.Data)
		closeErr := file.Close()
		if writeErr != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("write output file: %w", writeErr)
		}
		if closeErr != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close output file: %w", closeErr)
		}
		return path, nil
	}
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
