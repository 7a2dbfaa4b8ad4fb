// Package session tracks assistant runs: one active session at a time, with
// an explicit create → active → completed|aborted lifecycle.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courier-bot/courier/internal/logging"
)

// State is a session lifecycle stage.
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Session is one assistant run.
type Session struct {
	ID        string
	Prompt    string
	WorkDir   string
	State     State
	StartedAt time.Time

	cancel context.CancelFunc
}

// RunFunc executes the assistant for one prompt, returning when the stream
// ends or ctx is cancelled.
type RunFunc func(ctx context.Context, prompt, workDir string) error

// Manager enforces the single-active-session rule and drives lifecycle
// transitions.
type Manager struct {
	mu      sync.Mutex
	current *Session
	run     RunFunc
}

// NewManager creates a Manager that executes sessions via run.
func NewManager(run RunFunc) *Manager {
	return &Manager{run: run}
}

// Start begins a new session. Fails when another session is still active.
// The run executes on its own goroutine; done (when non-nil) is called after
// the terminal state is recorded.
func (m *Manager) Start(ctx context.Context, prompt, workDir string, done func(*Session)) (*Session, error) {
	m.mu.Lock()
	if m.current != nil && m.current.State == StateActive {
		active := m.current.ID
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s is still active", active)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		WorkDir:   workDir,
		State:     StateCreated,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	m.current = s
	s.State = StateActive
	m.mu.Unlock()

	log := logging.ForComponent(logging.CompSession)
	log.Info("session_started", "session_id", s.ID, "work_dir", workDir)

	go func() {
		err := m.run(runCtx, prompt, workDir)
		cancel()

		m.mu.Lock()
		if s.State == StateActive {
			if runCtx.Err() != nil {
				s.State = StateAborted
			} else {
				s.State = StateCompleted
			}
		}
		final := s.State
		m.mu.Unlock()

		if err != nil && runCtx.Err() == nil {
			log.Warn("session_run_failed", "session_id", s.ID, "error", err)
		}
		log.Info("session_ended", "session_id", s.ID, "state", string(final))

		if done != nil {
			done(s)
		}
	}()

	return s, nil
}

// Abort cancels the active session, if any. Reports whether a session was
// aborted.
func (m *Manager) Abort() bool {
	m.mu.Lock()
	s := m.current
	if s == nil || s.State != StateActive {
		m.mu.Unlock()
		return false
	}
	s.State = StateAborted
	cancel := s.cancel
	m.mu.Unlock()

	cancel()
	logging.ForComponent(logging.CompSession).Info("session_aborted", "session_id", s.ID)
	return true
}

// Current returns a snapshot of the most recent session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	snapshot.cancel = nil
	return &snapshot
}
