package memory

import (
	"context"
	"sync"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// AuditSink collects audit events in order.
type AuditSink struct {
	mu     sync.Mutex
	events []integrity.AuditEvent
}

func NewAuditSink() *AuditSink { return &AuditSink{} }

func (a *AuditSink) Record(_ context.Context, e integrity.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (a *AuditSink) Events() []integrity.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]integrity.AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}
