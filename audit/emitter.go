package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

const defaultBufferSize = 1024

// Emitter decouples audit delivery from the encryption path. Events are
// queued on a bounded buffer and delivered by a background goroutine; when
// the buffer is full the event is dropped and counted rather than blocking
// the caller. An encryption operation never fails because audit delivery
// failed.
type Emitter struct {
	sink    interfaces.AuditLogger
	events  chan *types.AuditEvent
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewEmitter starts an emitter draining into sink.
func NewEmitter(sink interfaces.AuditLogger, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	e := &Emitter{
		sink:   sink,
		events: make(chan *types.AuditEvent, bufferSize),
	}
	e.wg.Add(1)
	go e.drain()
	return e
}

func (e *Emitter) drain() {
	defer e.wg.Done()
	for event := range e.events {
		// Delivery failures are logged, never propagated.
		if err := e.sink.LogEvent(context.Background(), event); err != nil {
			log.Warn().Err(err).Str("auditId", event.ID).Msg("Audit delivery failed")
		}
	}
}

// LogEvent queues an event for delivery. It never blocks: when the buffer is
// full the event is dropped and the drop counter incremented.
func (e *Emitter) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if event == nil {
		return nil
	}
	select {
	case e.events <- event:
	default:
		dropped := e.dropped.Add(1)
		log.Warn().
			Uint64("totalDropped", dropped).
			Str("operation", event.Operation).
			Msg("Audit buffer full, event dropped")
	}
	return nil
}

// Dropped returns the number of events discarded due to a full buffer.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close flushes queued events and stops the background goroutine.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.events)
	})
	e.wg.Wait()
}
