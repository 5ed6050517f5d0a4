// Package coordinator tracks in-flight migration runs: one cancellable
// context per run, status snapshots for the operator surface, and a graceful
// shutdown that cancels everything and waits.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// Run is the in-memory handle for one migration run.
type Run struct {
	ID        string
	Table     string
	Status    types.RunStatus
	StartTime time.Time
	Err       error

	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator tracks active runs. No two runs may target the same table
// concurrently; checkpoint advancement stays monotonic per table.
type Coordinator struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	byTable map[string]string // table -> active run ID
	wg      sync.WaitGroup
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		runs:    make(map[string]*Run),
		byTable: make(map[string]string),
	}
}

// Begin registers a run and returns its cancellable context. It fails when
// the run ID is taken or another run is active for the same table.
func (c *Coordinator) Begin(ctx context.Context, runID, table string) (context.Context, *Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.runs[runID]; exists {
		return nil, nil, fmt.Errorf("run %s already exists", runID)
	}
	if active, exists := c.byTable[table]; exists {
		return nil, nil, fmt.Errorf("table %s already has active run %s", table, active)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:        runID,
		Table:     table,
		Status:    types.RunStatusPending,
		StartTime: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.runs[runID] = run
	c.byTable[table] = runID
	c.wg.Add(1)

	return runCtx, run, nil
}

// Update records a status transition for a run.
func (c *Coordinator) Update(runID string, status types.RunStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run, exists := c.runs[runID]; exists {
		run.Status = status
		run.Err = err
	}
}

// Finish marks a run terminal and releases its table slot. Idempotent.
func (c *Coordinator) Finish(runID string, status types.RunStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, exists := c.runs[runID]
	if !exists {
		return
	}
	select {
	case <-run.done:
		return // already finished
	default:
	}

	run.Status = status
	run.Err = err
	run.cancel()
	close(run.done)
	delete(c.byTable, run.Table)
	c.wg.Done()
}

// Cancel requests cooperative cancellation of a run. The run loop observes
// the cancelled context between batches; a batch is never left half-committed.
func (c *Coordinator) Cancel(runID string) error {
	c.mu.RLock()
	run, exists := c.runs[runID]
	c.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	run.cancel()
	return nil
}

// Get returns a copy of the run state, or nil when unknown.
func (c *Coordinator) Get(runID string) *Run {
	c.mu.RLock()
	defer c.mu.RUnlock()

	run, exists := c.runs[runID]
	if !exists {
		return nil
	}
	return &Run{
		ID:        run.ID,
		Table:     run.Table,
		Status:    run.Status,
		StartTime: run.StartTime,
		Err:       run.Err,
	}
}

// Wait blocks until the run reaches a terminal state or the context ends.
func (c *Coordinator) Wait(ctx context.Context, runID string) error {
	c.mu.RLock()
	run, exists := c.runs[runID]
	c.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to finish, bounded by
// the context.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, run := range c.runs {
		run.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
