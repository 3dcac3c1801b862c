package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-sanitizer/internal/domain"
	"media-sanitizer/internal/engine"
	"media-sanitizer/internal/engine/enginetest"
)

// TestEnsureLoadedTransitionsToLoaded checks the NotLoaded -> Loaded path.
func TestEnsureLoadedTransitionsToLoaded(t *testing.T) {
	fake := enginetest.New()
	c := NewController(fake, engine.Config{}, zerolog.Nop())
	assert.Equal(t, domain.EngineNotLoaded, c.Status().State)

	require.NoError(t, c.EnsureLoaded(context.Background()))
	require.NoError(t, c.EnsureLoaded(context.Background()))

	assert.True(t, c.Loaded())
	assert.Equal(t, "fake-engine 1.0", c.Status().Version)
	assert.Equal(t, 1, fake.Calls("load"))
}

// TestEnsureLoadedSingleFlight checks that concurrent callers share one load.
func TestEnsureLoadedSingleFlight(t *testing.T) {
	for _, tc := range []struct {
		name    string
		loadErr error
		want    domain.EngineState
	}{
		{name: "success", want: domain.EngineLoaded},
		{name: "failure", loadErr: errors.New("wasm fetch failed"), want: domain.EngineFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fake := enginetest.New()
			fake.LoadErr = tc.loadErr
			fake.LoadStarted = make(chan struct{}, 4)
			fake.LoadGate = make(chan struct{})
			c := NewController(fake, engine.Config{}, zerolog.Nop())

			var wg sync.WaitGroup
			errs := make([]error, 2)
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[0] = c.EnsureLoaded(context.Background())
			}()
			<-fake.LoadStarted
			assert.Equal(t, domain.EngineLoading, c.Status().State)

			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[1] = c.EnsureLoaded(context.Background())
			}()
			time.Sleep(50 * time.Millisecond)
			close(fake.LoadGate)
			wg.Wait()

			assert.Equal(t, 1, fake.Calls("load"))
			assert.Equal(t, tc.want, c.Status().State)
			assert.Equal(t, errs[0], errs[1])
			if tc.loadErr != nil {
				assert.ErrorIs(t, errs[0], tc.loadErr)
			}
		})
	}
}

// TestEnsureLoadedRetriesAfterFailure checks that Failed permits a caller retry.
func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	fake := enginetest.New()
	fake.LoadErr = errors.New("network down")
	c := NewController(fake, engine.Config{}, zerolog.Nop())

	err := c.EnsureLoaded(context.Background())
	require.Error(t, err)
	status := c.Status()
	assert.Equal(t, domain.EngineFailed, status.State)
	assert.Equal(t, "network down", status.Reason)

	fake.LoadErr = nil
	require.NoError(t, c.EnsureLoaded(context.Background()))
	assert.Equal(t, domain.EngineLoaded, c.Status().State)
	assert.Empty(t, c.Status().Reason)
	assert.Equal(t, 2, fake.Calls("load"))
}

// TestEnsureLoadedAbandonedWaitKeepsLoading checks that cancelling a waiter does not cancel the load.
func TestEnsureLoadedAbandonedWaitKeepsLoading(t *testing.T) {
	fake := enginetest.New()
	fake.LoadGate = make(chan struct{})
	c := NewController(fake, engine.Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.EnsureLoaded(ctx) }()

	require.Eventually(t, func() bool { return c.Status().State == domain.EngineLoading }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(fake.LoadGate)
	require.Eventually(t, c.Loaded, time.Second, 5*time.Millisecond)
}

// TestCloseResetsState checks teardown.
func TestCloseResetsState(t *testing.T) {
	fake := enginetest.New()
	c := NewController(fake, engine.Config{}, zerolog.Nop())
	require.NoError(t, c.EnsureLoaded(context.Background()))

	require.NoError(t, c.Close())
	assert.Equal(t, domain.EngineNotLoaded, c.Status().State)
	assert.Empty(t, fake.Version())
}
