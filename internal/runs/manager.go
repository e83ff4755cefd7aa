// Package runs executes finder runs on dedicated goroutines and tracks their
// status so a CLI or HTTP caller can poll and cancel them.
package runs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/finder"
	"github.com/JakeFAU/cbcr-finder/internal/metrics"
)

var (
	// ErrRunActive is returned when a scope already has a run in progress.
	ErrRunActive = errors.New("a run is already active for this scope")
	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Executor performs one run.
type Executor interface {
	Run(ctx context.Context, in finder.Input, token *finder.Token) (finder.Summary, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Run is a snapshot of one run.
type Run struct {
	ID         string         `json:"id"`
	Scope      string         `json:"scope"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Summary    finder.Summary `json:"summary"`
	Error      string         `json:"error,omitempty"`
}

type entry struct {
	run   Run
	token *finder.Token
	done  chan struct{}
}

// Manager owns the runs started in this process.
type Manager struct {
	ctx    context.Context
	exec   Executor
	ids    IDGenerator
	clock  Clock
	logger *zap.Logger

	mu     sync.Mutex
	runs   map[string]*entry
	active map[string]string
	wg     sync.WaitGroup
}

// NewManager builds a Manager. Runs observe ctx in addition to their token,
// so cancelling ctx stops every run at the next candidate.
func NewManager(ctx context.Context, exec Executor, ids IDGenerator, clock Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ctx:    ctx,
		exec:   exec,
		ids:    ids,
		clock:  clock,
		logger: logger,
		runs:   make(map[string]*entry),
		active: make(map[string]string),
	}
}

// Start validates in and launches it on a new goroutine.
func (m *Manager) Start(in finder.Input) (Run, error) {
	if err := in.Validate(); err != nil {
		return Run{}, err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return Run{}, fmt.Errorf("allocate run id: %w", err)
	}

	m.mu.Lock()
	if existing, busy := m.active[in.Scope]; busy {
		m.mu.Unlock()
		return Run{}, fmt.Errorf("scope %q (run %s): %w", in.Scope, existing, ErrRunActive)
	}
	in.RunID = id
	e := &entry{
		run: Run{
			ID:        id,
			Scope:     in.Scope,
			Status:    StatusRunning,
			StartedAt: m.clock.Now(),
		},
		token: finder.NewToken(),
		done:  make(chan struct{}),
	}
	m.runs[id] = e
	m.active[in.Scope] = id
	snapshot := e.run
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.IncActiveRuns()
	go m.execute(e, in)
	return snapshot, nil
}

func (m *Manager) execute(e *entry, in finder.Input) {
	defer m.wg.Done()
	defer close(e.done)
	defer metrics.DecActiveRuns()

	logger := m.logger.With(zap.String("run_id", e.run.ID))
	summary, err := m.exec.Run(m.ctx, in, e.token)

	status := StatusSucceeded
	switch {
	case err != nil:
		status = StatusFailed
		logger.Error("run failed", zap.Error(err))
	case summary.Cancelled:
		status = StatusCancelled
		logger.Info("run cancelled")
	}
	metrics.ObserveRun(string(status))

	finished := m.clock.Now()
	m.mu.Lock()
	e.run.Status = status
	e.run.Summary = summary
	e.run.FinishedAt = &finished
	if err != nil {
		e.run.Error = err.Error()
	}
	if m.active[in.Scope] == e.run.ID {
		delete(m.active, in.Scope)
	}
	m.mu.Unlock()
}

// Get returns the run with id.
func (m *Manager) Get(id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return e.run, nil
}

// List returns all runs ordered by start time.
func (m *Manager) List() []Run {
	m.mu.Lock()
	out := make([]Run, 0, len(m.runs))
	for _, e := range m.runs {
		out = append(out, e.run)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Cancel signals the run to stop after its current item. Cancelling a
// finished run is a no-op.
func (m *Manager) Cancel(id string) (Run, error) {
	m.mu.Lock()
	e, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	snapshot := e.run
	m.mu.Unlock()

	e.token.Cancel()
	return snapshot, nil
}

// Wait blocks until the run finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	e, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	select {
	case <-e.done:
		return m.Get(id)
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
}

// Shutdown cancels every run and waits for their goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, e := range m.runs {
		e.token.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs: %w", ctx.Err())
	}
}
