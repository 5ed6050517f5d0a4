package field

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/root-sector/customer-data-protection-module-encryption/aead"
	"github.com/root-sector/customer-data-protection-module-encryption/audit"
	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// verifyFixture is the known plaintext round-tripped by VerifyEncryption.
const verifyFixture = "verify-encryption-fixture"

const defaultWorkers = 8

// stats holds atomic operation counters. Snapshots are taken by Stats();
// there is no module-level state.
type stats struct {
	totalEncrypts uint64
	totalDecrypts uint64
	totalFailures uint64
	mu            sync.Mutex
	lastEncrypt   time.Time
	lastDecrypt   time.Time
	lastOp        time.Time
}

// service implements the interfaces.FieldService interface
type service struct {
	engine   *aead.Engine
	policies *PolicySet
	logger   interfaces.AuditLogger
	workers  int
	stats    stats
}

// NewService creates a field encryption service. The audit logger is
// optional; when nil, no events are emitted. Workers bounds the parallelism
// of the batch methods.
func NewService(engine *aead.Engine, policies *PolicySet, logger interfaces.AuditLogger, workers int) (interfaces.FieldService, error) {
	if engine == nil {
		return nil, fmt.Errorf("cipher engine is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy set is required")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	log.Debug().
		Int("policies", policies.Len()).
		Int("workers", workers).
		Msg("Field service created")

	return &service{
		engine:   engine,
		policies: policies,
		logger:   logger,
		workers:  workers,
	}, nil
}

func (s *service) emit(ctx context.Context, operation, fieldName string, version uint32, outcome string, opErr error) {
	if s.logger == nil {
		return
	}
	event := audit.Enrich(ctx, audit.NewEvent(operation, fieldName, version))
	event.Outcome = outcome
	if opErr != nil {
		event.Context[string(audit.KeyError)] = opErr.Error()
	}
	if err := s.logger.LogEvent(ctx, event); err != nil {
		log.Warn().Err(err).Msg("Failed to log audit event")
	}
}

func (s *service) markEncrypt() {
	atomic.AddUint64(&s.stats.totalEncrypts, 1)
	now := time.Now().UTC()
	s.stats.mu.Lock()
	s.stats.lastEncrypt = now
	s.stats.lastOp = now
	s.stats.mu.Unlock()
}

func (s *service) markDecrypt() {
	atomic.AddUint64(&s.stats.totalDecrypts, 1)
	now := time.Now().UTC()
	s.stats.mu.Lock()
	s.stats.lastDecrypt = now
	s.stats.lastOp = now
	s.stats.mu.Unlock()
}

func (s *service) markFailure() {
	atomic.AddUint64(&s.stats.totalFailures, 1)
}

// EncryptField encrypts a single value according to the field's policy.
// Fields without a sensitive policy pass through unchanged; the miss is
// logged once so a misconfigured deployment is visible.
func (s *service) EncryptField(ctx context.Context, fieldName string, value string) (string, error) {
	policy, known := s.policies.Lookup(fieldName)
	if !known {
		log.Warn().Str("field", fieldName).Msg("No policy entry for field, passing through")
		return value, nil
	}
	if !policy.Sensitive || value == "" {
		return value, nil
	}

	encrypted, err := s.engine.EncryptString(value)
	if err != nil {
		s.markFailure()
		s.emit(ctx, audit.OperationEncrypt, fieldName, s.engine.CurrentVersion(), audit.OutcomeFailed, err)
		return "", fmt.Errorf("failed to encrypt field %s: %w", fieldName, err)
	}

	s.markEncrypt()
	s.emit(ctx, audit.OperationEncrypt, fieldName, s.engine.CurrentVersion(), audit.OutcomeSuccess, nil)
	return encrypted, nil
}

// DecryptField is the inverse of EncryptField. Stored values that are not
// recognizable as encoded payloads are returned unchanged; a payload that
// fails authentication is a typed error, never silently-wrong plaintext.
func (s *service) DecryptField(ctx context.Context, fieldName string, value string) (string, error) {
	policy, known := s.policies.Lookup(fieldName)
	if !known {
		log.Warn().Str("field", fieldName).Msg("No policy entry for field, passing through")
		return value, nil
	}
	if !policy.Sensitive || value == "" {
		return value, nil
	}

	decrypted, err := s.engine.DecryptString(value)
	if err != nil {
		s.markFailure()
		s.emit(ctx, audit.OperationDecrypt, fieldName, 0, audit.OutcomeFailed, err)
		return "", fmt.Errorf("failed to decrypt field %s: %w", fieldName, err)
	}
	if decrypted == value {
		// Plaintext pass-through: tolerated during migration windows, no
		// decrypt counted.
		return value, nil
	}

	s.markDecrypt()
	s.emit(ctx, audit.OperationDecrypt, fieldName, 0, audit.OutcomeSuccess, nil)
	return decrypted, nil
}

func (s *service) transformRecord(ctx context.Context, record types.Record, transform func(context.Context, string, string) (string, error)) (types.Record, error) {
	out := record.Clone()
	ctx = audit.WithRecordID(ctx, record.ID)

	for name, value := range record.Fields {
		if _, known := s.policies.Lookup(name); !known {
			// Unknown keys pass through untouched.
			continue
		}
		transformed, err := transform(ctx, name, value)
		if err != nil {
			return types.Record{}, err
		}
		out.Fields[name] = transformed
	}
	return out, nil
}

// EncryptRecord encrypts every policy-covered field present in the record.
// The returned record has the same key set as the input.
func (s *service) EncryptRecord(ctx context.Context, record types.Record) (types.Record, error) {
	return s.transformRecord(ctx, record, s.EncryptField)
}

// DecryptRecord is the inverse of EncryptRecord.
func (s *service) DecryptRecord(ctx context.Context, record types.Record) (types.Record, error) {
	return s.transformRecord(ctx, record, s.DecryptField)
}

func (s *service) transformBatch(ctx context.Context, records []types.Record, transform func(context.Context, types.Record) (types.Record, error)) ([]types.Record, []types.RecordError) {
	out := make([]types.Record, len(records))
	errs := make([]*types.RecordError, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range records {
		i := i
		g.Go(func() error {
			transformed, err := transform(gctx, records[i])
			if err != nil {
				// Collected per record; a poison record never aborts the
				// rest of the batch.
				errs[i] = &types.RecordError{Index: i, RecordID: records[i].ID, Err: err}
				out[i] = records[i]
				return nil
			}
			out[i] = transformed
			return nil
		})
	}
	_ = g.Wait()

	collected := make([]types.RecordError, 0)
	for _, e := range errs {
		if e != nil {
			collected = append(collected, *e)
		}
	}
	return out, collected
}

// EncryptBatch applies EncryptRecord element-wise with bounded parallelism.
// Failed records are returned unchanged alongside their errors.
func (s *service) EncryptBatch(ctx context.Context, records []types.Record) ([]types.Record, []types.RecordError) {
	return s.transformBatch(ctx, records, s.EncryptRecord)
}

// DecryptBatch is the inverse of EncryptBatch.
func (s *service) DecryptBatch(ctx context.Context, records []types.Record) ([]types.Record, []types.RecordError) {
	return s.transformBatch(ctx, records, s.DecryptRecord)
}

// VerifyEncryption round-trips a fixture through the cipher engine. Used as
// a readiness probe before serving traffic or starting a migration.
func (s *service) VerifyEncryption(ctx context.Context) types.VerifyResult {
	version := s.engine.CurrentVersion()

	encrypted, err := s.engine.EncryptString(verifyFixture)
	if err != nil {
		return types.VerifyResult{KeyVersion: version, Details: fmt.Sprintf("encrypt failed: %v", err)}
	}
	if encrypted == verifyFixture {
		return types.VerifyResult{KeyVersion: version, Details: "fixture was not transformed"}
	}

	decrypted, err := s.engine.DecryptString(encrypted)
	if err != nil {
		return types.VerifyResult{KeyVersion: version, Details: fmt.Sprintf("decrypt failed: %v", err)}
	}
	if decrypted != verifyFixture {
		return types.VerifyResult{KeyVersion: version, Details: "round trip mismatch"}
	}

	return types.VerifyResult{OK: true, KeyVersion: version}
}

// Stats returns a snapshot of the operation counters.
func (s *service) Stats() types.FieldStats {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	return types.FieldStats{
		TotalEncrypts:   atomic.LoadUint64(&s.stats.totalEncrypts),
		TotalDecrypts:   atomic.LoadUint64(&s.stats.totalDecrypts),
		TotalFailures:   atomic.LoadUint64(&s.stats.totalFailures),
		LastEncryptTime: s.stats.lastEncrypt,
		LastDecryptTime: s.stats.lastDecrypt,
		LastOpTime:      s.stats.lastOp,
	}
}
