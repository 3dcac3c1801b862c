// Package sanitize is the sanitization orchestrator. It drives one file at a
// time through the engine's staging area:
//
//	ensure loaded -> write input -> build command -> execute -> read output -> delete both
//
// Staged blobs are deleted on every path once staging began. A second Run
// while one is in flight fails with ErrBusy and leaves the in-flight
// operation's status alone. Cancelling the caller's context only abandons the
// wait; the operation finishes, and releases its permit, in the background.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-sanitizer/internal/command"
	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/jobs"
	"media-sanitizer/internal/lifecycle"
	"media-sanitizer/internal/observability"
	"media-sanitizer/internal/staging"
)

// Service is the caller-facing operation surface.
type Service struct {
	lifecycle *lifecycle.Controller
	store     *staging.Store
	jobs      *jobs.Manager
	events    *jobs.EventBus
	logger    zerolog.Logger
	newID     func() string
	now       func() time.Time

	// lifeMu guards closing and inflight; idle is signalled when inflight
	// drops to zero.
	lifeMu   sync.Mutex
	idle     *sync.Cond
	closing  bool
	inflight int

	mu     sync.RWMutex
	status domain.ProcessingStatus
}

// Deliver stores a successful result before the operation reports
// completion and returns where it went. An error fails the operation with
// an I/O fault.
type Deliver func(ctx context.Context, result domain.Result) (string, error)

// Outcome is the final result of a started operation.
type Outcome struct {
	Result domain.Result
	Err    error
}

// NewService wires the orchestrator to a lifecycle controller. events may be
// nil, in which case a private bus is used.
func NewService(ctrl *lifecycle.Controller, events *jobs.EventBus, logger zerolog.Logger) *Service {
	if events == nil {
		events = jobs.NewEventBus(0)
	}
	s := &Service{
		lifecycle: ctrl,
		store:     staging.NewStore(ctrl.Engine(), logger),
		jobs:      jobs.NewManager(),
		events:    events,
		logger:    logger.With().Str("component", "sanitize").Logger(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	s.idle = sync.NewCond(&s.lifeMu)
	return s
}

// Load initializes the engine once. Concurrent callers share one load.
func (s *Service) Load(ctx context.Context) error {
	err := s.lifecycle.EnsureLoaded(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}

	fault := &Fault{Kind: FaultLoad, Message: "engine failed to load: " + err.Error(), Err: err}
	s.mu.Lock()
	s.status.Error = fault.Error()
	s.mu.Unlock()
	return fault
}

// Sanitize runs the general entry point. Nil opts means DefaultOptions.
func (s *Service) Sanitize(ctx context.Context, file domain.SourceFile, opts *domain.Options) (domain.Result, error) {
	o := DefaultOptions
	if opts != nil {
		o = *opts
		if o.OutputFormat != "" {
			ext := NormalizeExtension(o.OutputFormat)
			if ext == "" {
				err := fmt.Errorf("invalid output format %q", o.OutputFormat)
				return domain.Result{}, &Fault{Kind: FaultUnknown, Message: err.Error(), Err: err}
			}
			o.OutputFormat = ext
		}
	}
	return s.Run(ctx, domain.Request{Mode: domain.ModeSanitize, Source: file, Options: o})
}

// SanitizeForCI strips metadata and encodes bit-exact.
func (s *Service) SanitizeForCI(ctx context.Context, file domain.SourceFile, outputFormat string) (domain.Result, error) {
	return s.RunMode(ctx, domain.ModeCI, file, Overrides{OutputFormat: outputFormat})
}

// RemovePII applies the same bundle as SanitizeForCI under its own name.
func (s *Service) RemovePII(ctx context.Context, file domain.SourceFile, o Overrides) (domain.Result, error) {
	return s.RunMode(ctx, domain.ModeRemovePII, file, o)
}

// ApplyPrivacyGrain adds the fixed noise filter and, unless KeepMetadata is
// set, strips metadata. It never encodes bit-exact.
func (s *Service) ApplyPrivacyGrain(ctx context.Context, file domain.SourceFile, o Overrides) (domain.Result, error) {
	return s.RunMode(ctx, domain.ModePrivacyGrain, file, o)
}

// RunMode resolves a preset and runs it.
func (s *Service) RunMode(ctx context.Context, mode domain.Mode, file domain.SourceFile, o Overrides) (domain.Result, error) {
	req, err := modeRequest(mode, file, o)
	if err != nil {
		return domain.Result{}, err
	}
	return s.Run(ctx, req)
}

// StartMode resolves a preset and starts it without waiting. deliver may be
// nil.
func (s *Service) StartMode(ctx context.Context, mode domain.Mode, file domain.SourceFile, o Overrides, deliver Deliver) (domain.Job, <-chan Outcome, error) {
	req, err := modeRequest(mode, file, o)
	if err != nil {
		return domain.Job{}, nil, err
	}
	return s.start(ctx, req, deliver)
}

// Run executes one request. It fails with ErrBusy while another request is
// in flight, ErrNotLoaded before a successful Load, ErrIO on staging
// failures and ErrExecution when the engine rejects the command.
func (s *Service) Run(ctx context.Context, req domain.Request) (domain.Result, error) {
	job, done, err := s.Start(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}

	select {
	case o := <-done:
		return o.Result, o.Err
	case <-ctx.Done():
		s.logger.Warn().Str("job", job.ID).Msg("caller abandoned sanitization; finishing in background")
		return domain.Result{}, ctx.Err()
	}
}

// Start acquires the single-operation permit and runs req in the
// background. The returned channel receives exactly one Outcome. Only ErrBusy
// and, after Close, ErrNotLoaded are returned synchronously; every other
// failure arrives on the channel.
func (s *Service) Start(ctx context.Context, req domain.Request) (domain.Job, <-chan Outcome, error) {
	return s.start(ctx, req, nil)
}

func (s *Service) start(ctx context.Context, req domain.Request, deliver Deliver) (domain.Job, <-chan Outcome, error) {
	s.lifeMu.Lock()
	if s.closing {
		s.lifeMu.Unlock()
		return domain.Job{}, nil, &Fault{Kind: FaultNotLoaded, Message: "service is closed"}
	}
	jobID := s.newID()
	if err := s.jobs.Start(jobID, req.Mode); err != nil {
		s.lifeMu.Unlock()
		return domain.Job{}, nil, &Fault{Kind: FaultBusy, Message: "another sanitization is in progress", Err: err}
	}
	s.inflight++
	s.lifeMu.Unlock()

	done := make(chan Outcome, 1)
	go func() {
		defer s.release()
		result, err := s.execute(context.WithoutCancel(ctx), jobID, req, deliver)
		done <- Outcome{Result: result, Err: err}
	}()

	return domain.Job{ID: jobID, Mode: req.Mode, Status: domain.JobStatusStaging}, done, nil
}

func modeRequest(mode domain.Mode, file domain.SourceFile, o Overrides) (domain.Request, error) {
	opts, err := Preset(mode, o)
	if err != nil {
		return domain.Request{}, &Fault{Kind: FaultUnknown, Message: err.Error(), Err: err}
	}
	return domain.Request{Mode: mode, Source: file, Options: opts}, nil
}

// Status returns the caller-facing status.
func (s *Service) Status() domain.ProcessingStatus {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	status.IsLoaded = s.lifecycle.Loaded()
	return status
}

// EngineStatus returns the engine lifecycle snapshot.
func (s *Service) EngineStatus() domain.EngineStatus {
	return s.lifecycle.Status()
}

// Busy reports whether an operation currently holds the permit. Start
// remains the authoritative check.
func (s *Service) Busy() bool {
	return s.jobs.IsRunning()
}

// CurrentJob returns the current or last job.
func (s *Service) CurrentJob() domain.Job {
	return s.jobs.Current()
}

// Events returns the bus progress and outcome events are published on.
func (s *Service) Events() *jobs.EventBus {
	return s.events
}

// Wait blocks until no operation is in flight.
func (s *Service) Wait() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

func (s *Service) release() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// Close refuses further operations, waits for in-flight work and tears the
// engine down.
func (s *Service) Close() error {
	s.lifeMu.Lock()
	s.closing = true
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.lifeMu.Unlock()
	return s.lifecycle.Close()
}

func (s *Service) execute(ctx context.Context, jobID string, req domain.Request, deliver Deliver) (domain.Result, error) {
	started := s.now()

	if !s.lifecycle.Loaded() {
		fault := &Fault{Kind: FaultNotLoaded, Stage: domain.JobStatusStaging, Message: "engine not loaded; call Load first"}
		s.finish(jobID, req, started, domain.Result{}, fault)
		return domain.Result{}, fault
	}

	s.mu.Lock()
	s.status.IsProcessing = true
	s.status.Progress = 0
	s.mu.Unlock()
	s.publishStatus(jobID, domain.JobStatusStaging, "Staging input")

	result, err := s.stageAndRun(ctx, jobID, req, deliver)
	s.finish(jobID, req, started, result, err)
	return result, err
}

// stageAndRun performs the staged transform. Deletion of both staged names
// runs on return regardless of outcome.
func (s *Service) stageAndRun(ctx context.Context, jobID string, req domain.Request, deliver Deliver) (domain.Result, error) {
	inExt := inputExtension(req.Source.Name, req.Source.MediaType, req.Source.Data)
	outExt := outputExtension(inExt, req.Options.OutputFormat)
	inName, outName := staging.InputName(inExt), staging.OutputName(outExt)

	defer func() {
		s.transition(jobID, domain.JobStatusCleanup, "Removing staged files")
		s.store.Delete(ctx, inName)
		s.store.Delete(ctx, outName)
	}()

	if err := s.store.Write(ctx, inName, req.Source.Data); err != nil {
		return domain.Result{}, classify(domain.JobStatusStaging, err)
	}

	s.transition(jobID, domain.JobStatusExecuting, "Running engine")
	args := command.Build(req.Options, inName, outName)
	log, err := s.lifecycle.Engine().Exec(ctx, args, func(fraction float64) {
		s.reportProgress(jobID, fraction)
	})
	s.publishLog(jobID, log)
	if err != nil {
		return domain.Result{}, classify(domain.JobStatusExecuting, err)
	}

	s.transition(jobID, domain.JobStatusCollecting, "Reading output")
	data, err := s.store.Read(ctx, outName)
	if err != nil {
		return domain.Result{}, classify(domain.JobStatusCollecting, err)
	}

	result := domain.Result{
		Data:          data,
		MimeType:      MimeTypeForExtension(outExt),
		Extension:     outExt,
		SuggestedName: suggestedName(req.Source.Name, string(req.Mode), outExt),
		Log:           log,
	}
	if deliver != nil {
		path, err := deliver(ctx, result)
		if err != nil {
			return domain.Result{}, &Fault{Kind: FaultIO, Stage: domain.JobStatusCollecting, Message: "deliver output: " + err.Error(), Err: err}
		}
		result.OutputPath = path
	}
	return result, nil
}

// reportProgress rounds the engine fraction to a percent. Monotonicity is
// not enforced.
func (s *Service) reportProgress(jobID string, fraction float64) {
	percent := int(math.Round(fraction * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	s.status.Progress = percent
	s.mu.Unlock()

	s.events.Publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeProgress, Progress: percent})
}

// finish records the outcome, publishes the terminal event and only then
// releases the permit. The status is updated first so a following Run
// cannot be overwritten, and the terminal event is the last one of the job.
func (s *Service) finish(jobID string, req domain.Request, started time.Time, result domain.Result, err error) {
	elapsed := s.now().Sub(started)
	logger := s.logger.With().Str("job", jobID).Str("mode", string(req.Mode)).Dur("elapsed", elapsed).Logger()

	s.mu.Lock()
	s.status.IsProcessing = false
	if err == nil {
		s.status.Progress = 100
		s.status.Error = ""
	} else {
		s.status.Error = err.Error()
	}
	s.mu.Unlock()

	_ = s.jobs.Transition(domain.JobStatusCleanup)
	if err == nil {
		observability.RecordRun(string(req.Mode), "ok", elapsed)
		logger.Info().Int("bytes", len(result.Data)).Str("mime", result.MimeType).Str("path", result.OutputPath).Msg("sanitization completed")
		s.events.Publish(jobs.Event{
			JobID:      jobID,
			Type:       jobs.EventTypeResult,
			Status:     domain.JobStatusDone,
			Progress:   100,
			Message:    result.SuggestedName,
			MimeType:   result.MimeType,
			OutputPath: result.OutputPath,
		})
		_ = s.jobs.Transition(domain.JobStatusDone)
		return
	}

	kind := KindOf(err)
	observability.RecordRun(string(req.Mode), string(kind), elapsed)
	logger.Error().Err(err).Str("fault", string(kind)).Msg("sanitization failed")
	s.events.Publish(jobs.Event{
		JobID:     jobID,
		Type:      jobs.EventTypeError,
		Status:    domain.JobStatusFailed,
		Message:   err.Error(),
		FaultKind: string(kind),
	})
	_ = s.jobs.Transition(domain.JobStatusFailed)
}

func (s *Service) transition(jobID string, status domain.JobStatus, message string) {
	if err := s.jobs.Transition(status); err != nil {
		s.logger.Debug().Err(err).Str("job", jobID).Msg("ignored transition")
		return
	}
	s.publishStatus(jobID, status, message)
}

func (s *Service) publishStatus(jobID string, status domain.JobStatus, message string) {
	s.events.Publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

func (s *Service) publishLog(jobID string, log domain.CommandLog) {
	if log.Command == "" {
		return
	}
	s.events.Publish(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Message:  "Command completed",
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stderr:   log.Stderr,
	})
}

// NewServiceForTests constructs a service with a fixed ID generator.
func NewServiceForTests(ctrl *lifecycle.Controller, events *jobs.EventBus, newID func() string) *Service {
	s := NewService(ctrl, events, zerolog.Nop())
	if newID != nil {
		s.newID = newID
	}
	return s
}

// StagedNames returns staged blobs not yet deleted.
func (s *Service) StagedNames() []string {
	return s.store.Live()
}
