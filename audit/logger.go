package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// ZerologLogger emits audit events as structured log lines.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates an audit logger writing through zerolog.
func NewZerologLogger() *ZerologLogger {
	return &ZerologLogger{
		logger: log.With().Str("component", "audit").Logger(),
	}
}

// LogEvent logs an audit event with essential context information.
func (l *ZerologLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	// Ensure required fields
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logEvent := l.logger.Info().
		Str("auditId", event.ID).
		Time("timestamp", event.Timestamp).
		Str("operation", event.Operation).
		Str("outcome", event.Outcome)

	if event.Field != "" {
		logEvent = logEvent.Str("field", event.Field)
	}
	if event.RecordID != "" {
		logEvent = logEvent.Str("recordId", event.RecordID)
	}
	if event.KeyVersion != 0 {
		logEvent = logEvent.Uint32("keyVersion", event.KeyVersion)
	}
	if table := event.Context[string(KeyTable)]; table != "" {
		logEvent = logEvent.Str("table", table)
	}
	if tenant := event.Context[string(KeyTenant)]; tenant != "" {
		logEvent = logEvent.Str("tenantId", tenant)
	}
	if runID := event.Context[string(KeyRunID)]; runID != "" {
		logEvent = logEvent.Str("runId", runID)
	}
	if errMsg := event.Context[string(KeyError)]; errMsg != "" {
		logEvent = logEvent.Str("error", errMsg)
	}

	logEvent.Msg("Audit event")
	return nil
}
