// Package migration re-encrypts existing stored data in resumable,
// checkpointed batches. A run walks a table in primary-key order, skips
// values already encrypted under the current key version, snapshots
// pre-images before every real write, and commits with conditional updates
// so concurrent application writes are never clobbered.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/root-sector/customer-data-protection-module-encryption/aead"
	"github.com/root-sector/customer-data-protection-module-encryption/audit"
	"github.com/root-sector/customer-data-protection-module-encryption/coordinator"
	"github.com/root-sector/customer-data-protection-module-encryption/field"
	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/payload"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

var (
	// ErrUnknownField rejects a run that names a field with no policy entry.
	ErrUnknownField = errors.New("field has no policy entry")

	// ErrFieldNotSensitive rejects a run that names a non-sensitive field.
	ErrFieldNotSensitive = errors.New("field is not marked sensitive")

	// ErrRunActive guards rollback and snapshot cleanup against runs that are
	// still making progress.
	ErrRunActive = errors.New("migration run is still active")

	// ErrRollbackDryRun is returned for dry runs, which write nothing.
	ErrRollbackDryRun = errors.New("dry-run migrations write nothing to roll back")
)

const (
	// DefaultBatchSize is the number of records fetched per scan when the
	// caller does not set one.
	DefaultBatchSize = 100

	defaultWorkers = 4

	terminalSaveTimeout = 10 * time.Second
)

// Options parameterizes one migration run.
type Options struct {
	Table     string
	Fields    []string
	Scope     types.ScopeFilter
	DryRun    bool
	BatchSize int
	Workers   int
}

// Config carries the engine's collaborators.
type Config struct {
	Records     interfaces.RecordStore
	Checkpoints interfaces.CheckpointStore
	Snapshots   interfaces.SnapshotStore
	Cipher      *aead.Engine
	Policies    *field.PolicySet
	Coordinator *coordinator.Coordinator
	Audit       interfaces.AuditLogger
	Retry       RetryPolicy
}

// Engine orchestrates migration runs. Safe for concurrent use; the
// coordinator serializes runs per table.
type Engine struct {
	records     interfaces.RecordStore
	checkpoints interfaces.CheckpointStore
	snapshots   interfaces.SnapshotStore
	cipher      *aead.Engine
	policies    *field.PolicySet
	coord       *coordinator.Coordinator
	audit       interfaces.AuditLogger
	retry       RetryPolicy
}

// New creates a migration engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if cfg.Cipher == nil {
		return nil, fmt.Errorf("cipher engine is required")
	}
	if cfg.Policies == nil {
		return nil, fmt.Errorf("policy set is required")
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = coordinator.New()
	}

	return &Engine{
		records:     cfg.Records,
		checkpoints: cfg.Checkpoints,
		snapshots:   cfg.Snapshots,
		cipher:      cfg.Cipher,
		policies:    cfg.Policies,
		coord:       cfg.Coordinator,
		audit:       cfg.Audit,
		retry:       cfg.Retry.normalized(),
	}, nil
}

// Start validates the options, creates or resumes a checkpoint for the
// table, and launches the run loop in the background. It returns the run ID;
// use Wait, Status, and Cancel to follow the run.
func (e *Engine) Start(ctx context.Context, opts Options) (string, error) {
	if opts.Table == "" {
		return "", fmt.Errorf("table is required")
	}
	if len(opts.Fields) == 0 {
		return "", fmt.Errorf("at least one field is required")
	}
	for _, name := range opts.Fields {
		policy, known := e.policies.Lookup(name)
		if !known {
			return "", fmt.Errorf("field %s: %w", name, ErrUnknownField)
		}
		if !policy.Sensitive {
			return "", fmt.Errorf("field %s: %w", name, ErrFieldNotSensitive)
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	cp, err := e.resumeOrCreate(ctx, opts)
	if err != nil {
		return "", err
	}

	// The run must outlive the Start call; only Cancel and Shutdown stop it.
	runCtx, _, err := e.coord.Begin(context.WithoutCancel(ctx), cp.RunID, cp.Table)
	if err != nil {
		return "", err
	}

	if err := e.saveCheckpoint(ctx, cp); err != nil {
		e.coord.Finish(cp.RunID, types.RunStatusFailed, err)
		return "", fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	go e.run(runCtx, cp, opts.BatchSize, opts.Workers)
	return cp.RunID, nil
}

// resumeOrCreate picks up the table's latest checkpoint when it is not
// completed, otherwise starts a fresh run. A resumed run keeps its recorded
// parameters; the caller's options only matter for a fresh run.
func (e *Engine) resumeOrCreate(ctx context.Context, opts Options) (*types.Checkpoint, error) {
	prev, err := e.checkpoints.FindByTable(ctx, opts.Table)
	if err != nil && !errors.Is(err, interfaces.ErrCheckpointNotFound) {
		return nil, fmt.Errorf("failed to look up checkpoint for table %s: %w", opts.Table, err)
	}
	if prev != nil && prev.Status != types.RunStatusCompleted {
		log.Info().
			Str("run_id", prev.RunID).
			Str("table", prev.Table).
			Str("last_key", prev.LastKey).
			Str("previous_status", string(prev.Status)).
			Msg("Resuming interrupted migration run")
		prev.Status = types.RunStatusPending
		prev.Error = ""
		return prev, nil
	}

	runID := uuid.New().String()
	now := time.Now().UTC()
	return &types.Checkpoint{
		RunID:      runID,
		Table:      opts.Table,
		Fields:     opts.Fields,
		Scope:      opts.Scope,
		DryRun:     opts.DryRun,
		Status:     types.RunStatusPending,
		SnapshotID: runID,
		StartedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Status returns the persisted checkpoint for a run.
func (e *Engine) Status(ctx context.Context, runID string) (*types.Checkpoint, error) {
	return e.checkpoints.Get(ctx, runID)
}

// Cancel requests cooperative cancellation. The run finishes its current
// batch, persists the checkpoint, and ends as aborted.
func (e *Engine) Cancel(runID string) error {
	return e.coord.Cancel(runID)
}

// Wait blocks until the run reaches a terminal state or the context ends.
func (e *Engine) Wait(ctx context.Context, runID string) error {
	return e.coord.Wait(ctx, runID)
}

// Rollback replays the run's snapshot pre-images verbatim, restoring every
// migrated field to the value it held before the run touched it. The run
// must be terminal.
func (e *Engine) Rollback(ctx context.Context, runID string) (int, error) {
	cp, err := e.checkpoints.Get(ctx, runID)
	if err != nil {
		return 0, err
	}
	if !cp.Status.Terminal() {
		return 0, ErrRunActive
	}
	if cp.DryRun {
		return 0, ErrRollbackDryRun
	}

	entries, err := e.snapshots.List(ctx, cp.SnapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot %s: %w", cp.SnapshotID, err)
	}

	restored := 0
	for _, entry := range entries {
		if err := e.records.PutField(ctx, entry.Table, entry.RecordID, entry.Field, entry.Value); err != nil {
			return restored, fmt.Errorf("rollback write for %s.%s failed: %w", entry.RecordID, entry.Field, err)
		}
		restored++
	}

	log.Info().
		Str("run_id", runID).
		Str("table", cp.Table).
		Int("restored", restored).
		Msg("Migration run rolled back")
	return restored, nil
}

// DiscardSnapshot deletes the run's pre-images once the run has been
// verified and rollback is no longer wanted.
func (e *Engine) DiscardSnapshot(ctx context.Context, runID string) error {
	cp, err := e.checkpoints.Get(ctx, runID)
	if err != nil {
		return err
	}
	if !cp.Status.Terminal() {
		return ErrRunActive
	}
	return e.snapshots.Delete(ctx, cp.SnapshotID)
}

func (e *Engine) run(ctx context.Context, cp *types.Checkpoint, batchSize, workers int) {
	ctx = audit.WithRunID(audit.WithTable(ctx, cp.Table), cp.RunID)
	current := e.cipher.CurrentVersion()

	log.Info().
		Str("run_id", cp.RunID).
		Str("table", cp.Table).
		Strs("fields", cp.Fields).
		Bool("dry_run", cp.DryRun).
		Int("batch_size", batchSize).
		Uint32("key_version", current).
		Msg("Migration run started")

	for {
		// Cancellation is observed between batches only; a batch is never
		// left half-committed.
		select {
		case <-ctx.Done():
			e.finish(cp, types.RunStatusAborted, ctx.Err())
			return
		default:
		}

		cp.Status = types.RunStatusScanning
		e.coord.Update(cp.RunID, types.RunStatusScanning, nil)

		var batch []types.Record
		err := e.retry.Do(ctx, func() error {
			var scanErr error
			batch, scanErr = e.records.Scan(ctx, cp.Table, cp.LastKey, batchSize, cp.Scope)
			return scanErr
		})
		if err != nil {
			e.finish(cp, types.RunStatusFailed, fmt.Errorf("batch scan failed: %w", err))
			return
		}
		if len(batch) == 0 {
			e.finish(cp, types.RunStatusCompleted, nil)
			return
		}

		cp.Status = types.RunStatusEncrypting
		e.coord.Update(cp.RunID, types.RunStatusEncrypting, nil)

		if err := e.processBatch(ctx, cp, batch, current, workers); err != nil {
			e.finish(cp, types.RunStatusFailed, err)
			return
		}

		cp.LastKey = batch[len(batch)-1].ID
		if err := e.saveCheckpoint(ctx, cp); err != nil {
			e.finish(cp, types.RunStatusFailed, fmt.Errorf("checkpoint save failed: %w", err))
			return
		}
	}
}

// fieldOp is one planned re-encryption of a single field value.
type fieldOp struct {
	recordID string
	field    string
	oldValue string
	newValue string
}

type recordPlan struct {
	id  string
	ops []fieldOp
	err error
}

// planRecord decides what each target field needs: nothing (empty or already
// under the current key version), or a decrypt/re-encrypt. Undecryptable
// values fail the record; they are the operator's signal of corrupt rows.
func (e *Engine) planRecord(rec types.Record, fields []string, current uint32) recordPlan {
	plan := recordPlan{id: rec.ID}
	for _, name := range fields {
		value, present := rec.Fields[name]
		if !present || value == "" {
			continue
		}
		if payload.Version(value) == current {
			continue
		}
		plaintext, err := e.cipher.DecryptString(value)
		if err != nil {
			plan.err = fmt.Errorf("field %s: %w", name, err)
			return plan
		}
		encrypted, err := e.cipher.EncryptString(plaintext)
		if err != nil {
			plan.err = fmt.Errorf("field %s: %w", name, err)
			return plan
		}
		plan.ops = append(plan.ops, fieldOp{
			recordID: rec.ID,
			field:    name,
			oldValue: value,
			newValue: encrypted,
		})
	}
	return plan
}

// processBatch plans every record, persists pre-images, then commits the
// writes. The snapshot is durable before the first write so an interrupted
// batch can always be rolled back.
func (e *Engine) processBatch(ctx context.Context, cp *types.Checkpoint, batch []types.Record, current uint32, workers int) error {
	plans := make([]recordPlan, len(batch))

	var plan errgroup.Group
	plan.SetLimit(workers)
	for i := range batch {
		i := i
		plan.Go(func() error {
			plans[i] = e.planRecord(batch[i], cp.Fields, current)
			return nil
		})
	}
	_ = plan.Wait()

	counts := types.MigrationCounts{Scanned: int64(len(batch))}

	if cp.DryRun {
		for i := range plans {
			switch {
			case plans[i].err != nil:
				counts.Failed++
			case len(plans[i].ops) > 0:
				counts.Encrypted++
			default:
				counts.Skipped++
			}
		}
		e.accumulate(cp, counts)
		return nil
	}

	now := time.Now().UTC()
	var entries []types.SnapshotEntry
	for i := range plans {
		if plans[i].err != nil {
			continue
		}
		for _, op := range plans[i].ops {
			entries = append(entries, types.SnapshotEntry{
				Table:    cp.Table,
				RecordID: op.recordID,
				Field:    op.field,
				Value:    op.oldValue,
				TakenAt:  now,
			})
		}
	}
	if len(entries) > 0 {
		err := e.retry.Do(ctx, func() error {
			return e.snapshots.Append(ctx, cp.SnapshotID, entries)
		})
		if err != nil {
			return fmt.Errorf("snapshot append failed: %w", err)
		}
	}

	var encrypted, skipped, failed atomic.Int64
	var commit errgroup.Group
	commit.SetLimit(workers)
	for i := range plans {
		i := i
		commit.Go(func() error {
			p := plans[i]
			if p.err != nil {
				failed.Add(1)
				e.emit(ctx, p.id, "", 0, audit.OutcomeFailed, p.err)
				log.Warn().
					Str("run_id", cp.RunID).
					Str("record_id", p.id).
					Err(p.err).
					Msg("Record failed, continuing with the rest of the batch")
				return nil
			}
			if len(p.ops) == 0 {
				skipped.Add(1)
				return nil
			}

			var recErr error
			for _, op := range p.ops {
				if err := e.commitField(ctx, cp.Table, op, current); err != nil {
					recErr = err
					e.emit(ctx, op.recordID, op.field, current, audit.OutcomeFailed, err)
					log.Warn().
						Str("run_id", cp.RunID).
						Str("record_id", op.recordID).
						Str("field", op.field).
						Err(err).
						Msg("Field commit failed, continuing with the rest of the batch")
					continue
				}
				e.emit(ctx, op.recordID, op.field, current, audit.OutcomeSuccess, nil)
			}
			if recErr != nil {
				failed.Add(1)
			} else {
				encrypted.Add(1)
			}
			return nil
		})
	}
	_ = commit.Wait()

	counts.Encrypted = encrypted.Load()
	counts.Skipped = skipped.Load()
	counts.Failed = failed.Load()
	e.accumulate(cp, counts)
	return nil
}

// commitField performs the conditional write, re-reading and re-planning on
// a write conflict. When the conflicting writer already encrypted the field
// under the current key version, the op is done.
func (e *Engine) commitField(ctx context.Context, table string, op fieldOp, current uint32) error {
	expected := op.oldValue
	value := op.newValue

	return e.retry.Do(ctx, func() error {
		err := e.records.UpdateField(ctx, table, op.recordID, op.field, expected, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, interfaces.ErrWriteConflict) {
			return backoff.Permanent(err)
		}

		rec, getErr := e.records.Get(ctx, table, op.recordID)
		if getErr != nil {
			if errors.Is(getErr, interfaces.ErrRecordNotFound) {
				// Deleted concurrently: nothing left to migrate.
				return nil
			}
			return getErr
		}
		cur := rec.Fields[op.field]
		if cur == "" || payload.Version(cur) == current {
			return nil
		}

		plaintext, decErr := e.cipher.DecryptString(cur)
		if decErr != nil {
			return backoff.Permanent(decErr)
		}
		reenc, encErr := e.cipher.EncryptString(plaintext)
		if encErr != nil {
			return backoff.Permanent(encErr)
		}
		expected, value = cur, reenc
		return err
	})
}

func (e *Engine) accumulate(cp *types.Checkpoint, counts types.MigrationCounts) {
	cp.Counts.Scanned += counts.Scanned
	cp.Counts.Encrypted += counts.Encrypted
	cp.Counts.Skipped += counts.Skipped
	cp.Counts.Failed += counts.Failed
}

func (e *Engine) saveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	return e.retry.Do(ctx, func() error {
		return e.checkpoints.Save(ctx, cp)
	})
}

// finish persists the terminal checkpoint and releases the run's table slot.
// The save uses a fresh context so an aborted run still records its progress.
func (e *Engine) finish(cp *types.Checkpoint, status types.RunStatus, cause error) {
	cp.Status = status
	if status == types.RunStatusCompleted {
		cp.CompletedAt = time.Now().UTC()
	}
	cp.Error = ""
	if cause != nil {
		cp.Error = cause.Error()
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), terminalSaveTimeout)
	defer cancel()
	if err := e.saveCheckpoint(saveCtx, cp); err != nil {
		log.Error().
			Str("run_id", cp.RunID).
			Err(err).
			Msg("Failed to persist terminal checkpoint")
	}

	e.coord.Finish(cp.RunID, status, cause)

	evt := log.Info()
	if status == types.RunStatusFailed {
		evt = log.Error()
	}
	evt.
		Str("run_id", cp.RunID).
		Str("table", cp.Table).
		Str("status", string(status)).
		Int64("scanned", cp.Counts.Scanned).
		Int64("encrypted", cp.Counts.Encrypted).
		Int64("skipped", cp.Counts.Skipped).
		Int64("failed", cp.Counts.Failed).
		Err(cause).
		Msg("Migration run finished")
}

func (e *Engine) emit(ctx context.Context, recordID, fieldName string, version uint32, outcome string, cause error) {
	if e.audit == nil {
		return
	}
	event := audit.Enrich(audit.WithRecordID(ctx, recordID), audit.NewEvent(audit.OperationMigrate, fieldName, version))
	event.Outcome = outcome
	if cause != nil {
		event.Context[string(audit.KeyError)] = cause.Error()
	}
	if err := e.audit.LogEvent(ctx, event); err != nil {
		log.Warn().Err(err).Msg("Failed to log audit event")
	}
}
