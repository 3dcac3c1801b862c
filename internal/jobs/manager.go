package jobs

import (
	"errors"
	"fmt"
	"sync"

	"media-sanitizer/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// Manager tracks the single allowed active job and its transitions. Start is
// the permit: it succeeds only when no job is between Staging and Cleanup.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start creates a new job and moves it to staging state.
func (m *Manager) Start(jobID string, mode domain.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:     jobID,
		Mode:   mode,
		Status: domain.JobStatusStaging,
	}
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// isRunning checks if a status represents an operation in flight.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusStaging, domain.JobStatusExecuting, domain.JobStatusCollecting, domain.JobStatusCleanup:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the per-operation state machine:
// Idle -> Staging -> Executing -> Collecting -> Cleanup -> Done|Failed.
// Every running stage may short-circuit to Cleanup on failure.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusStaging
	case domain.JobStatusStaging:
		return to == domain.JobStatusExecuting || to == domain.JobStatusCleanup
	case domain.JobStatusExecuting:
		return to == domain.JobStatusCollecting || to == domain.JobStatusCleanup
	case domain.JobStatusCollecting:
		return to == domain.JobStatusCleanup
	case domain.JobStatusCleanup:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed
	case domain.JobStatusDone, domain.JobStatusFailed:
		return to == domain.JobStatusStaging || to == domain.JobStatusIdle
	default:
		return false
	}
}
