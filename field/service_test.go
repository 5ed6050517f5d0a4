package field

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector/customer-data-protection-module-encryption/aead"
	"github.com/root-sector/customer-data-protection-module-encryption/audit"
	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/keys"
	"github.com/root-sector/customer-data-protection-module-encryption/payload"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

type memorySink struct {
	mu     sync.Mutex
	events []*types.AuditEvent
}

func (m *memorySink) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) byOperation(op string) []*types.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.AuditEvent
	for _, e := range m.events {
		if e.Operation == op {
			out = append(out, e)
		}
	}
	return out
}

func testPolicies(t *testing.T) *PolicySet {
	t.Helper()
	set, err := NewPolicySet([]types.FieldPolicy{
		{Name: "phone_number", Sensitive: true},
		{Name: "email", Sensitive: true},
		{Name: "display_name", Sensitive: false},
	})
	require.NoError(t, err)
	return set
}

func testEngine(t *testing.T) *aead.Engine {
	t.Helper()
	reg, err := keys.NewRegistry([]keys.Material{
		{Version: 1, Key: bytes.Repeat([]byte{0x42}, keys.KeyLength)},
	}, 1)
	require.NoError(t, err)
	engine, err := aead.New(reg)
	require.NoError(t, err)
	return engine
}

func testService(t *testing.T, sink interfaces.AuditLogger) interfaces.FieldService {
	t.Helper()
	svc, err := NewService(testEngine(t), testPolicies(t), sink, 4)
	require.NoError(t, err)
	return svc
}

func TestEncryptFieldScenario(t *testing.T) {
	sink := &memorySink{}
	svc := testService(t, sink)
	ctx := context.Background()

	encrypted, err := svc.EncryptField(ctx, "phone_number", "+15551234567")
	require.NoError(t, err)
	assert.NotEqual(t, "+15551234567", encrypted)

	p, ok := payload.Decode(encrypted)
	require.True(t, ok, "output must decode as a valid encoded payload")
	assert.Equal(t, uint32(1), p.Version)

	decrypted, err := svc.DecryptField(ctx, "phone_number", encrypted)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", decrypted)

	// One audit event per field operation.
	assert.Len(t, sink.byOperation(audit.OperationEncrypt), 1)
	assert.Len(t, sink.byOperation(audit.OperationDecrypt), 1)
}

func TestFieldPassThroughRules(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		value string
	}{
		{"empty value", "phone_number", ""},
		{"non-sensitive field", "display_name", "Ada Lovelace"},
		{"unknown field", "shoe_size", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := svc.EncryptField(ctx, tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, encrypted)

			decrypted, err := svc.DecryptField(ctx, tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, decrypted)
		})
	}
}

func TestDecryptFieldPlaintextTolerated(t *testing.T) {
	svc := testService(t, nil)

	// A plaintext row read mid-migration comes back unchanged.
	got, err := svc.DecryptField(context.Background(), "phone_number", "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got)
}

func TestDecryptFieldTamperedFails(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	encrypted, err := svc.EncryptField(ctx, "email", "user@example.com")
	require.NoError(t, err)

	p, ok := payload.Decode(encrypted)
	require.True(t, ok)
	p.Ciphertext[0] ^= 0x01

	_, err = svc.DecryptField(ctx, "email", payload.Encode(p))
	require.Error(t, err)
	assert.True(t, errors.Is(err, aead.ErrAuthenticationFailed))
}

func TestEncryptRecordPreservesKeySet(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	record := types.Record{
		ID: "rec-1",
		Fields: map[string]string{
			"phone_number": "+15551234567",
			"email":        "user@example.com",
			"display_name": "Ada Lovelace",
			"unknown_attr": "left alone",
		},
	}

	encrypted, err := svc.EncryptRecord(ctx, record)
	require.NoError(t, err)

	assert.Len(t, encrypted.Fields, len(record.Fields), "output record must keep the input key set")
	assert.Equal(t, "rec-1", encrypted.ID)
	assert.NotEqual(t, record.Fields["phone_number"], encrypted.Fields["phone_number"])
	assert.NotEqual(t, record.Fields["email"], encrypted.Fields["email"])
	assert.Equal(t, "Ada Lovelace", encrypted.Fields["display_name"])
	assert.Equal(t, "left alone", encrypted.Fields["unknown_attr"])

	// Input record untouched.
	assert.Equal(t, "+15551234567", record.Fields["phone_number"])

	decrypted, err := svc.DecryptRecord(ctx, encrypted)
	require.NoError(t, err)
	assert.Equal(t, record.Fields, decrypted.Fields)
}

func TestEncryptBatchPartialFailureIsolation(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	records := make([]types.Record, 5)
	for i := range records {
		records[i] = types.Record{
			ID:     string(rune('a' + i)),
			Fields: map[string]string{"phone_number": "+1555000000" + string(rune('0'+i))},
		}
	}
	encrypted, errs := svc.EncryptBatch(ctx, records)
	require.Empty(t, errs)

	// Poison one record's ciphertext, then decrypt the whole batch.
	p, ok := payload.Decode(encrypted[2].Fields["phone_number"])
	require.True(t, ok)
	p.Tag[0] ^= 0xff
	encrypted[2].Fields["phone_number"] = payload.Encode(p)

	decrypted, errs := svc.DecryptBatch(ctx, encrypted)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Index)
	assert.Equal(t, "c", errs[0].RecordID)
	assert.True(t, errors.Is(errs[0].Err, aead.ErrAuthenticationFailed))

	for i, rec := range decrypted {
		if i == 2 {
			continue
		}
		assert.Equal(t, records[i].Fields["phone_number"], rec.Fields["phone_number"], "record %d must decrypt despite the poison record", i)
	}
}

func TestVerifyEncryption(t *testing.T) {
	svc := testService(t, nil)

	result := svc.VerifyEncryption(context.Background())
	assert.True(t, result.OK, "details: %s", result.Details)
	assert.Equal(t, uint32(1), result.KeyVersion)
}

func TestStats(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	encrypted, err := svc.EncryptField(ctx, "phone_number", "+15551234567")
	require.NoError(t, err)
	_, err = svc.DecryptField(ctx, "phone_number", encrypted)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.TotalEncrypts)
	assert.Equal(t, uint64(1), stats.TotalDecrypts)
	assert.Zero(t, stats.TotalFailures)
	assert.False(t, stats.LastOpTime.IsZero())
}
