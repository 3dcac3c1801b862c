// Package lifecycle owns the one-time asynchronous initialization of the
// transcoding engine.
//
// The Controller is the only writer of the engine state. Concurrent
// EnsureLoaded callers share a single in-flight Load; a failed load leaves
// the state Failed and the next EnsureLoaded call retries. Close tears the
// engine down and is meant for process exit.
package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
	"media-sanitizer/internal/observability"
)

const loadKey = "load"

// Controller guards engine initialization.
type Controller struct {
	engine engine.Engine
	cfg    engine.Config
	logger zerolog.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	status domain.EngineStatus
}

// NewController creates a controller in the NotLoaded state.
func NewController(eng engine.Engine, cfg engine.Config, logger zerolog.Logger) *Controller {
	return &Controller{
		engine: eng,
		cfg:    cfg,
		logger: logger.With().Str("component", "lifecycle").Logger(),
		status: domain.EngineStatus{State: domain.EngineNotLoaded},
	}
}

// Engine returns the controlled engine.
func (c *Controller) Engine() engine.Engine {
	return c.engine
}

// EnsureLoaded returns immediately when the engine is loaded. Otherwise it
// starts or joins the single in-flight load and waits for its outcome.
// Cancelling ctx abandons the wait but not the load itself.
func (c *Controller) EnsureLoaded(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(loadKey, func() (any, error) {
		return nil, c.load(loadCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) load(ctx context.Context) error {
	c.mu.Lock()
	if c.status.State == domain.EngineLoaded {
		c.mu.Unlock()
		return nil
	}
	c.status = domain.EngineStatus{State: domain.EngineLoading}
	c.mu.Unlock()

	c.logger.Info().Msg("loading engine")
	err := c.engine.Load(ctx, c.cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = domain.EngineStatus{State: domain.EngineFailed, Reason: err.Error()}
		c.logger.Error().Err(err).Msg("engine load failed")
		observability.RecordEngineLoad(false)
		return err
	}

	c.status = domain.EngineStatus{State: domain.EngineLoaded, Version: c.engine.Version()}
	observability.RecordEngineLoad(true)
	return nil
}

// Status returns a snapshot of the engine state.
func (c *Controller) Status() domain.EngineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Loaded reports whether the engine finished loading.
func (c *Controller) Loaded() bool {
	return c.Status().State == domain.EngineLoaded
}

// Close tears the engine down and resets the state to NotLoaded.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = domain.EngineStatus{State: domain.EngineNotLoaded}
	return c.engine.Close()
}
