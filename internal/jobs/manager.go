package jobs

import (
	"errors"
	"sync"

	"study-buddy/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active poll.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when stop is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the displayed state of the single active task.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{current: domain.Job{Step: -1}}
}

// Start begins tracking taskID. The display starts at the first step.
func (m *Manager) Start(taskID, sourceName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Polling {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		TaskID:     taskID,
		SourceName: sourceName,
		Status:     domain.TaskStatusUploaded,
		Step:       domain.TaskStatusUploaded.StepIndex(),
		Polling:    true,
	}
	return nil
}

// Observe overwrites the displayed status with the backend's report.
// Backend statuses are not validated against a local state machine.
func (m *Manager) Observe(status domain.TaskStatus) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.Status = status
	if idx := status.StepIndex(); idx >= 0 {
		m.current.Step = idx
	}
	if status.IsTerminal() {
		m.current.Polling = false
	}
	return m.current
}

// Note records a non-terminal message, such as a failed poll request.
func (m *Manager) Note(msg string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Error = msg
	return m.current
}

// Fail marks the task as failed with a user-facing message.
func (m *Manager) Fail(msg string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.Status = domain.TaskStatusError
	m.current.Error = msg
	m.current.Polling = false
	return m.current
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Step: -1}
}

// Stop ends polling while keeping the last displayed state.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.Polling {
		return ErrNoRunningJob
	}
	m.current.Polling = false
	return nil
}
